package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ids"
)

// Persister loads and stores a user's tasks. Tasks are never deleted here.
type Persister interface {
	LoadTasks(ctx context.Context, userID string) ([]Task, error)
	SaveTask(ctx context.Context, t Task) error
}

// Options configures an Engine.
type Options struct {
	Threshold float64
	Now       func() time.Time
	NewID     func(time.Time) (string, error)
	Logger    *zap.Logger
}

// Engine creates and completes tasks. Mutations for one user are serialized;
// tasks are shared by every session of that user.
type Engine struct {
	mu    sync.Mutex
	users map[string]*sync.Mutex

	persist   Persister
	threshold float64
	now       func() time.Time
	newID     func(time.Time) (string, error)
	logger    *zap.Logger
}

// NewEngine creates an engine over persist. A nil persist keeps tasks in memory.
func NewEngine(persist Persister, opts Options) *Engine {
	if persist == nil {
		persist = NewMemoryStore()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
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
		users:     make(map[string]*sync.Mutex),
		persist:   persist,
		threshold: opts.Threshold,
		now:       opts.Now,
		newID:     opts.NewID,
		logger:    opts.Logger,
	}
}

func (e *Engine) lockUser(userID string) func() {
	e.mu.Lock()
	m, ok := e.users[userID]
	if !ok {
		m = &sync.Mutex{}
		e.users[userID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e *Engine) pending(ctx context.Context, userID string) ([]Task, error) {
	all, err := e.persist.LoadTasks(ctx, userID)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("load tasks: %w", err))
	}
	list := pendingOf(all, userID)
	SortPending(list)
	return list, nil
}

// Create adds a task. Without an explicit priority the task ranks after
// every pending task of the user.
func (e *Engine) Create(ctx context.Context, userID string, in NewTask) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, errors.NewInvalidRequest("title is required")
	}
	if in.Priority < 0 {
		return Task{}, errors.NewInvalidRequest("priority must be positive")
	}

	unlock := e.lockUser(userID)
	defer unlock()

	priority := in.Priority
	if priority == 0 {
		list, err := e.pending(ctx, userID)
		if err != nil {
			return Task{}, err
		}
		priority = 1
		for _, t := range list {
			if t.Priority >= priority {
				priority = t.Priority + 1
			}
		}
	}

	now := e.now().UTC()
	id, err := e.newID(now)
	if err != nil {
		return Task{}, errors.NewInternal(fmt.Errorf("generate task id: %w", err))
	}

	t := Task{
		ID:          id,
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		DueDate:     in.DueDate,
		CreatedAt:   now,
	}
	if err := e.persist.SaveTask(ctx, t); err != nil {
		return Task{}, errors.NewInternal(fmt.Errorf("save task: %w", err))
	}

	e.logger.Info("task created", zap.String("user_id", userID), zap.String("task_id", id), zap.Int("priority", priority))
	return t, nil
}

// CompleteByTitle completes the pending task phrase refers to.
func (e *Engine) CompleteByTitle(ctx context.Context, userID, phrase string) (Match, error) {
	if strings.TrimSpace(phrase) == "" {
		return Match{}, errors.NewInvalidRequest("phrase is required")
	}

	unlock := e.lockUser(userID)
	defer unlock()

	list, err := e.pending(ctx, userID)
	if err != nil {
		return Match{}, err
	}
	m, err := MatchTitle(list, phrase, e.threshold)
	if err != nil {
		e.logger.Info("task match failed", zap.String("user_id", userID), zap.String("phrase", phrase), zap.Error(err))
		return Match{}, err
	}

	done, err := e.complete(ctx, m.Task)
	if err != nil {
		return Match{}, err
	}
	m.Task = done
	return m, nil
}

// CompleteByID completes a pending task of the user.
func (e *Engine) CompleteByID(ctx context.Context, userID, id string) (Task, error) {
	unlock := e.lockUser(userID)
	defer unlock()

	list, err := e.pending(ctx, userID)
	if err != nil {
		return Task{}, err
	}
	for _, t := range list {
		if t.ID == id {
			return e.complete(ctx, t)
		}
	}
	return Task{}, errors.NewTaskNotFound(id)
}

func (e *Engine) complete(ctx context.Context, t Task) (Task, error) {
	now := e.now().UTC()
	t.CompletedAt = &now
	if err := e.persist.SaveTask(ctx, t); err != nil {
		return Task{}, errors.NewInternal(fmt.Errorf("save task: %w", err))
	}
	e.logger.Info("task completed", zap.String("user_id", t.UserID), zap.String("task_id", t.ID))
	return t, nil
}

// Pending lists the user's pending tasks in priority order.
func (e *Engine) Pending(ctx context.Context, userID string) ([]Task, error) {
	return e.pending(ctx, userID)
}

// MemoryStore is an in-memory Persister.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]Task
	order []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task)}
}

// LoadTasks returns the user's tasks in insertion order.
func (m *MemoryStore) LoadTasks(_ context.Context, userID string) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, id := range m.order {
		if t := m.tasks[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SaveTask inserts or replaces a task.
func (m *MemoryStore) SaveTask(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.tasks[t.ID] = t
	return nil
}
