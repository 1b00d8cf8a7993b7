// Package ops is the use-case layer shared by the CLI, the MCP server and the
// web viewer. Each operation takes an Input struct, validates it and returns
// an Output struct or a *errors.QuireError.
package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/config"
	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/session"
	"github.com/hpungsan/quire/internal/tasks"
	"github.com/hpungsan/quire/internal/template"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Options tunes a Service.
type Options struct {
	// BaseDir holds the exports directory. Empty means ~/.quire.
	BaseDir string
	Now     func() time.Time
	Logger  *zap.Logger
}

// Service wires the drafting, task and insight engines to SQLite.
type Service struct {
	db        *sql.DB
	cfg       *config.Config
	registry  *template.Registry
	drafts    *draft.Engine
	tasks     *tasks.Engine
	assembler *assembler.Assembler
	baseDir   string
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a Service. registry must hold the active template.
func New(database *sql.DB, cfg *config.Config, registry *template.Registry, opts Options) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	store := &backend{db: database}
	drafts := draft.NewEngine(store, draft.Options{
		FallbackSection: cfg.FallbackSection,
		MaxChars:        cfg.DraftMaxChars,
		Now:             opts.Now,
		Logger:          opts.Logger.Named("draft"),
	})
	taskEngine := tasks.NewEngine(store, tasks.Options{
		Threshold: cfg.TaskMatchThreshold,
		Now:       opts.Now,
		Logger:    opts.Logger.Named("tasks"),
	})
	asm := assembler.New(assembler.Deps{
		Registry:    registry,
		Sessions:    store,
		Preferences: store,
		Entries:     store,
		Drafts:      drafts,
		Tasks:       taskEngine,
		Locker:      session.NewLocker(),
	}, assembler.Options{
		InsightsDefaultDays: cfg.InsightsDefaultDays,
		InsightsMaxDays:     cfg.InsightsMaxDays,
		Now:                 opts.Now,
		Logger:              opts.Logger.Named("assembler"),
	})

	return &Service{
		db:        database,
		cfg:       cfg,
		registry:  registry,
		drafts:    drafts,
		tasks:     taskEngine,
		assembler: asm,
		baseDir:   opts.BaseDir,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Registry returns the template registry the service resolves sections against.
func (s *Service) Registry() *template.Registry {
	return s.registry
}

// requireUser trims and validates a user id.
func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.NewInvalidRequest("user_id is required")
	}
	return userID, nil
}

// backend adapts the db package to the persistence interfaces of the
// draft, tasks and assembler packages.
type backend struct {
	db *sql.DB
}

func (b *backend) LoadDraft(ctx context.Context, sessionID string) (*draft.Draft, error) {
	return db.LoadDraft(ctx, b.db, sessionID)
}

func (b *backend) SaveDraft(ctx context.Context, d *draft.Draft, prev int64) error {
	return db.SaveDraft(ctx, b.db, d, prev)
}

func (b *backend) CommitEntry(ctx context.Context, e journal.Entry, prev int64) error {
	return db.CommitDraft(ctx, b.db, e, prev)
}

func (b *backend) LoadTasks(ctx context.Context, userID string) ([]tasks.Task, error) {
	return db.LoadTasks(ctx, b.db, userID, false)
}

func (b *backend) SaveTask(ctx context.Context, t tasks.Task) error {
	return db.SaveTask(ctx, b.db, t)
}

func (b *backend) GetSession(ctx context.Context, id string) (assembler.SessionInfo, error) {
	s, err := db.GetSession(ctx, b.db, id)
	if err != nil {
		return assembler.SessionInfo{}, err
	}
	return assembler.SessionInfo{ID: s.ID, UserID: s.UserID, CreatedAt: s.CreatedAt}, nil
}

func (b *backend) GetPreferences(ctx context.Context, userID string) (map[string]string, error) {
	return db.GetPreferences(ctx, b.db, userID)
}

func (b *backend) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]journal.Entry, error) {
	return db.ListEntries(ctx, b.db, userID, from, to)
}

// SearchEntries returns hits with HTML-safe snippets.
func (b *backend) SearchEntries(ctx context.Context, userID, query string, limit int) ([]journal.SearchHit, error) {
	hits, err := db.SearchEntries(ctx, b.db, userID, query, limit)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Snippet = truncateSnippet(escapeSnippetHTML(hits[i].Snippet), MaxSnippetChars)
	}
	return hits, nil
}
