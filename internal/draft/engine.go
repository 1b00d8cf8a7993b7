package draft

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ids"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/template"
)

// Hint routes one fragment to a candidate section name.
type Hint struct {
	Section  string `json:"section"`
	Fragment string `json:"fragment"`
}

// Contribution is one classified user turn.
type Contribution struct {
	RawText string `json:"raw_text,omitempty"`
	Hints   []Hint `json:"hints"`
}

// HintsFromMap converts a section -> fragment map into hints ordered by section name.
func HintsFromMap(m map[string]string) []Hint {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	hints := make([]Hint, 0, len(names))
	for _, name := range names {
		hints = append(hints, Hint{Section: name, Fragment: m[name]})
	}
	return hints
}

// Result reports what a contribution changed.
type Result struct {
	Updated  []string          `json:"updated_sections"`
	Rerouted map[string]string `json:"rerouted,omitempty"` // unresolved name -> fallback section
	Draft    *Draft            `json:"draft"`
}

// Persister is the storage boundary of the engine. Several processes may
// share one store, so every write is conditional on the revision it was
// derived from: SaveDraft stores d only while the checkpoint is still at
// revision prev (0 means no checkpoint), and CommitEntry stores the entry and
// drops the checkpoint only while it is at revision prev. Both return a
// DRAFT_CONFLICT error otherwise. LoadDraft returns nil when no checkpoint
// exists.
type Persister interface {
	LoadDraft(ctx context.Context, sessionID string) (*Draft, error)
	SaveDraft(ctx context.Context, d *Draft, prev int64) error
	CommitEntry(ctx context.Context, entry journal.Entry, prev int64) error
}

// maxWriteAttempts bounds how often a write is re-derived from a fresh
// checkpoint after losing a race with another writer.
const maxWriteAttempts = 3

// Options configures an Engine.
type Options struct {
	// FallbackSection receives fragments whose section does not resolve.
	// Empty disables it.
	FallbackSection string
	// MaxChars caps the characters held by one draft. 0 means unlimited.
	MaxChars int
	Now      func() time.Time
	NewID    func(time.Time) (string, error)
	Logger   *zap.Logger
}

type slot struct {
	mu   sync.Mutex
	refs int
}

// Engine applies contributions and finalizes drafts. The checkpoint is the
// only copy of a draft: it is read again under the session's slot for every
// operation, so writes from other processes are never overwritten.
type Engine struct {
	mu    sync.Mutex
	slots map[string]*slot

	persist  Persister
	fallback string
	maxChars int
	now      func() time.Time
	newID    func(time.Time) (string, error)
	logger   *zap.Logger
}

// NewEngine creates an engine. persist may be nil for a memory-only engine.
func NewEngine(persist Persister, opts Options) *Engine {
	if persist == nil {
		persist = newMemoryPersister()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = ids.NewULID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		slots:    make(map[string]*slot),
		persist:  persist,
		fallback: strings.TrimSpace(opts.FallbackSection),
		maxChars: opts.MaxChars,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   opts.Logger,
	}
}

// acquire locks the session's slot. The returned func unlocks it and drops
// the slot once no goroutine holds or waits for it.
func (e *Engine) acquire(sessionID string) func() {
	e.mu.Lock()
	s, ok := e.slots[sessionID]
	if !ok {
		s = &slot{}
		e.slots[sessionID] = s
	}
	s.refs++
	e.mu.Unlock()

	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		e.mu.Lock()
		s.refs--
		if s.refs == 0 {
			delete(e.slots, sessionID)
		}
		e.mu.Unlock()
	}
}

// active returns the number of sessions with a held or awaited slot.
func (e *Engine) active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.slots)
}

// load reads the session's checkpoint. Caller holds the slot.
func (e *Engine) load(ctx context.Context, sessionID, userID string) (*Draft, error) {
	d, err := e.persist.LoadDraft(ctx, sessionID)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("load draft: %w", err))
	}
	if d != nil && d.UserID != userID {
		return nil, errors.NewNotFound("session", sessionID)
	}
	return d, nil
}

// ApplyContribution merges every hint of c into the session's draft.
//
// All section names are resolved before anything is merged: a single
// unresolvable name (with no fallback configured) fails the whole call with
// UNKNOWN_SECTION and leaves the draft untouched. Blank fragments are ignored.
// Applying the same contribution twice appends twice.
func (e *Engine) ApplyContribution(ctx context.Context, sessionID, userID string, tmpl *template.Template, c Contribution) (*Result, error) {
	if tmpl == nil {
		return nil, errors.NewInternal(fmt.Errorf("no template for session %s", sessionID))
	}

	var (
		resolved   []routed
		unresolved []string
		rerouted   map[string]string
	)
	fallback, hasFallback := "", false
	if e.fallback != "" {
		fallback, hasFallback = tmpl.Resolve(e.fallback)
	}

	for _, h := range c.Hints {
		fragment := strings.TrimSpace(h.Fragment)
		if fragment == "" {
			continue
		}
		section, ok := tmpl.Resolve(h.Section)
		if !ok {
			if !hasFallback {
				unresolved = appendUnique(unresolved, strings.TrimSpace(h.Section))
				continue
			}
			if rerouted == nil {
				rerouted = make(map[string]string)
			}
			rerouted[strings.TrimSpace(h.Section)] = fallback
			section = fallback
		}
		resolved = append(resolved, routed{section: section, fragment: fragment})
	}
	if len(unresolved) > 0 {
		return nil, errors.NewUnknownSection(unresolved, tmpl.SectionNames())
	}

	release := e.acquire(sessionID)
	defer release()

	for attempt := 1; ; attempt++ {
		current, err := e.load(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return &Result{Updated: []string{}, Draft: snapshotOf(current, sessionID, userID)}, nil
		}

		working, updated := e.merge(current, sessionID, userID, tmpl.Name(), resolved, c.RawText)
		if e.maxChars > 0 {
			if n := working.Chars(); n > e.maxChars {
				return nil, errors.NewDraftTooLarge(e.maxChars, n)
			}
		}

		err = e.persist.SaveDraft(ctx, working, current.revision())
		switch {
		case err == nil:
			e.logger.Debug("contribution applied",
				zap.String("session_id", sessionID),
				zap.Strings("sections", updated),
				zap.Int("rerouted", len(rerouted)),
				zap.Int64("revision", working.Revision))
			return &Result{Updated: updated, Rerouted: rerouted, Draft: working.Clone()}, nil
		case errors.Is(err, errors.ErrDraftConflict):
			if attempt >= maxWriteAttempts {
				return nil, err
			}
			e.logger.Debug("draft changed concurrently, merging again",
				zap.String("session_id", sessionID), zap.Int("attempt", attempt))
		default:
			return nil, errors.NewInternal(fmt.Errorf("checkpoint draft: %w", err))
		}
	}
}

type routed struct {
	section  string
	fragment string
}

// merge returns a copy of current with the routed fragments appended and the
// turn recorded, at the next revision.
func (e *Engine) merge(current *Draft, sessionID, userID, tmplName string, resolved []routed, rawText string) (*Draft, []string) {
	working := current.Clone()
	if working == nil {
		working = newDraft(sessionID, userID)
		working.Template = tmplName
	}

	updated := make([]string, 0, len(resolved))
	fragments := make([]string, 0, len(resolved))
	for _, r := range resolved {
		if _, seen := working.Sections[r.section]; !seen {
			working.Order = append(working.Order, r.section)
		}
		working.Sections[r.section] = working.Sections[r.section].Append(r.fragment)
		updated = appendUnique(updated, r.section)
		fragments = append(fragments, r.fragment)
	}

	turn := strings.TrimSpace(rawText)
	if turn == "" {
		turn = strings.Join(fragments, "\n")
	}
	working.Turns = append(working.Turns, turn)
	working.UpdatedAt = e.now().UTC()
	working.Revision = current.revision() + 1
	return working, updated
}

// Finalize turns the session's draft into a journal entry and clears the
// draft. The draft survives if the entry cannot be committed. A draft that
// another writer changed or finalized in the meantime is read again, so an
// entry is committed at most once per checkpoint.
func (e *Engine) Finalize(ctx context.Context, sessionID, userID string) (journal.Entry, error) {
	release := e.acquire(sessionID)
	defer release()

	for attempt := 1; ; attempt++ {
		current, err := e.load(ctx, sessionID, userID)
		if err != nil {
			return journal.Entry{}, err
		}
		if current.IsEmpty() {
			return journal.Entry{}, errors.NewEmptyDraft(sessionID)
		}

		entry, err := e.entryFrom(current, sessionID, userID)
		if err != nil {
			return journal.Entry{}, err
		}

		err = e.persist.CommitEntry(ctx, entry, current.revision())
		switch {
		case err == nil:
			e.logger.Info("draft finalized",
				zap.String("session_id", sessionID),
				zap.String("entry_id", entry.ID),
				zap.Int("sections", len(entry.Data.Sections)))
			return entry, nil
		case errors.Is(err, errors.ErrDraftConflict):
			if attempt >= maxWriteAttempts {
				return journal.Entry{}, err
			}
		default:
			return journal.Entry{}, errors.NewInternal(fmt.Errorf("commit entry: %w", err))
		}
	}
}

func (e *Engine) entryFrom(d *Draft, sessionID, userID string) (journal.Entry, error) {
	now := e.now().UTC()
	id, err := e.newID(now)
	if err != nil {
		return journal.Entry{}, errors.NewInternal(fmt.Errorf("generate entry id: %w", err))
	}

	sections := journal.CloneSections(d.Sections)
	order := make([]string, 0, len(d.Order))
	for _, name := range d.Order {
		if _, ok := sections[name]; ok {
			order = append(order, name)
		}
	}

	return journal.Entry{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: now,
		RawText:   strings.Join(d.Turns, "\n\n"),
		Data: journal.StructuredData{
			Sections: sections,
			Order:    order,
			Metadata: journal.Metadata{
				GeneratedAt: now,
				SessionID:   sessionID,
				Template:    d.Template,
			},
		},
	}, nil
}

// Snapshot returns a deep copy of the session's draft. A session with no
// draft yields an empty one.
func (e *Engine) Snapshot(ctx context.Context, sessionID, userID string) (*Draft, error) {
	release := e.acquire(sessionID)
	defer release()

	d, err := e.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(d, sessionID, userID), nil
}

func snapshotOf(d *Draft, sessionID, userID string) *Draft {
	if d == nil {
		return newDraft(sessionID, userID)
	}
	return d.Clone()
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// memoryPersister keeps checkpoints in a map with the same revision checks
// as the SQLite store.
type memoryPersister struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{drafts: make(map[string]*Draft)}
}

func (m *memoryPersister) LoadDraft(_ context.Context, sessionID string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[sessionID].Clone(), nil
}

func (m *memoryPersister) SaveDraft(_ context.Context, d *Draft, prev int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drafts[d.SessionID].revision() != prev {
		return errors.NewDraftConflict(d.SessionID)
	}
	m.drafts[d.SessionID] = d.Clone()
	return nil
}

func (m *memoryPersister) CommitEntry(_ context.Context, entry journal.Entry, prev int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drafts[entry.SessionID].revision() != prev {
		return errors.NewDraftConflict(entry.SessionID)
	}
	delete(m.drafts, entry.SessionID)
	return nil
}
