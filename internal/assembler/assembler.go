// Package assembler builds the per-turn context handed to the model runtime
// and applies the operations it asks for, one session at a time.
package assembler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/insights"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/session"
	"github.com/hpungsan/quire/internal/tasks"
	"github.com/hpungsan/quire/internal/template"
)

// SessionInfo identifies a session and its owner.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sessions looks up sessions. A missing session is NOT_FOUND.
type Sessions interface {
	GetSession(ctx context.Context, id string) (SessionInfo, error)
}

// Preferences returns a user's stored preferences.
type Preferences interface {
	GetPreferences(ctx context.Context, userID string) (map[string]string, error)
}

// Entries reads finalized entries. ListEntries returns entries created in
// [from, to] in ascending creation order.
type Entries interface {
	ListEntries(ctx context.Context, userID string, from, to time.Time) ([]journal.Entry, error)
	SearchEntries(ctx context.Context, userID, query string, limit int) ([]journal.SearchHit, error)
}

// Deps are the collaborators of an Assembler.
type Deps struct {
	Registry    *template.Registry
	Sessions    Sessions
	Preferences Preferences
	Entries     Entries
	Drafts      *draft.Engine
	Tasks       *tasks.Engine
	Locker      *session.Locker
}

// Options tunes an Assembler.
type Options struct {
	InsightsDefaultDays int
	InsightsMaxDays     int
	Now                 func() time.Time
	Logger              *zap.Logger
}

// Assembler composes template, draft, tasks and preferences into a Bundle
// and applies invocations under the per-session lock.
type Assembler struct {
	deps Deps

	mu        sync.Mutex
	snapshots map[string]*template.Template // session -> template in use

	defaultDays int
	maxDays     int
	now         func() time.Time
	logger      *zap.Logger
}

// New creates an Assembler.
func New(deps Deps, opts Options) *Assembler {
	if deps.Locker == nil {
		deps.Locker = session.NewLocker()
	}
	if opts.InsightsDefaultDays <= 0 {
		opts.InsightsDefaultDays = 30
	}
	if opts.InsightsMaxDays <= 0 {
		opts.InsightsMaxDays = 365
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Assembler{
		deps:        deps,
		snapshots:   make(map[string]*template.Template),
		defaultDays: opts.InsightsDefaultDays,
		maxDays:     opts.InsightsMaxDays,
		now:         opts.Now,
		logger:      opts.Logger,
	}
}

// Bundle is the read-only context for one model turn.
type Bundle struct {
	SessionID    string             `json:"session_id"`
	UserID       string             `json:"user_id"`
	Template     *template.Template `json:"template"`
	Draft        *draft.Draft       `json:"draft"`
	PendingTasks []tasks.Task       `json:"pending_tasks"`
	Preferences  map[string]string  `json:"preferences"`
	Operations   []OperationSpec    `json:"operations"`
}

// BuildContext composes the bundle for a turn. It is where a session picks up
// a reloaded template. It takes no session lock.
func (a *Assembler) BuildContext(ctx context.Context, userID, sessionID string) (*Bundle, error) {
	if err := a.checkSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	tmpl := a.deps.Registry.Current()
	a.pinTemplate(sessionID, tmpl)

	d, err := a.deps.Drafts.Snapshot(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	pending, err := a.deps.Tasks.Pending(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs, err := a.deps.Preferences.GetPreferences(ctx, userID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if prefs == nil {
		prefs = map[string]string{}
	}
	if pending == nil {
		pending = []tasks.Task{}
	}

	return &Bundle{
		SessionID:    sessionID,
		UserID:       userID,
		Template:     tmpl,
		Draft:        d,
		PendingTasks: pending,
		Preferences:  prefs,
		Operations:   DescribeOperations(),
	}, nil
}

// TemplateFor returns the template the session resolves sections against.
// A session that never built a context gets the current template.
func (a *Assembler) TemplateFor(sessionID string) *template.Template {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.snapshots[sessionID]
	if !ok {
		t = a.deps.Registry.Current()
		a.pinLocked(sessionID, t)
	}
	return t
}

// maxPinnedTemplates bounds the session -> template map. An evicted session
// resolves against the current template on its next call.
const maxPinnedTemplates = 1024

func (a *Assembler) pinTemplate(sessionID string, t *template.Template) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pinLocked(sessionID, t)
}

func (a *Assembler) pinLocked(sessionID string, t *template.Template) {
	if _, ok := a.snapshots[sessionID]; !ok && len(a.snapshots) >= maxPinnedTemplates {
		for id := range a.snapshots {
			delete(a.snapshots, id)
			break
		}
	}
	a.snapshots[sessionID] = t
}

// unpinTemplate forgets the session's template once its draft is finalized.
func (a *Assembler) unpinTemplate(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.snapshots, sessionID)
}

func (a *Assembler) pinned() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

// checkSession verifies the session exists and belongs to userID. Another
// user's session is reported as not found.
func (a *Assembler) checkSession(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return errors.NewInvalidRequest("user_id is required")
	}
	if sessionID == "" {
		return errors.NewInvalidRequest("session_id is required")
	}
	info, err := a.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if info.UserID != userID {
		return errors.NewNotFound("session", sessionID)
	}
	return nil
}

// lock takes the session lock. Waiting is bounded by ctx.
func (a *Assembler) lock(ctx context.Context, sessionID string) (func(), error) {
	return a.deps.Locker.Lock(ctx, sessionID)
}

// Structure applies one contribution under the session lock.
func (a *Assembler) Structure(ctx context.Context, userID, sessionID string, args StructureArgs) (*draft.Result, error) {
	if err := a.checkSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return nil, errors.NewTurnInterrupted(0, 1, err)
	}
	defer unlock()
	return a.structure(ctx, userID, sessionID, args)
}

// Finalize finalizes the session's draft under the session lock.
func (a *Assembler) Finalize(ctx context.Context, userID, sessionID string) (journal.Entry, error) {
	if err := a.checkSession(ctx, userID, sessionID); err != nil {
		return journal.Entry{}, err
	}
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return journal.Entry{}, errors.NewTurnInterrupted(0, 1, err)
	}
	defer unlock()
	return a.finalize(ctx, userID, sessionID)
}

// finalize commits the draft and drops the session's pinned template. Caller
// holds the session lock.
func (a *Assembler) finalize(ctx context.Context, userID, sessionID string) (journal.Entry, error) {
	entry, err := a.deps.Drafts.Finalize(ctx, sessionID, userID)
	if err != nil {
		return journal.Entry{}, err
	}
	a.unpinTemplate(sessionID)
	return entry, nil
}

// Insights generates a report over the last days days. Zero days means the
// configured default; the value is capped at the configured maximum.
func (a *Assembler) Insights(ctx context.Context, userID string, days int) (insights.Report, error) {
	return a.insights(ctx, userID, InsightsArgs{Days: days})
}
