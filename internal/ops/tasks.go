package ops

import (
	"context"
	"sort"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/tasks"
)

// CreateTaskInput contains parameters for the CreateTask operation.
// Either Title or Phrase is required.
type CreateTaskInput struct {
	UserID      string
	Title       string
	Phrase      string // "I need to call mom" -> "Call mom"
	Description string
	Priority    int    // 0 ranks the task after every pending task
	DueDate     string // YYYY-MM-DD or RFC 3339
}

// CreateTask adds a todo item.
func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput) (*tasks.Task, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	t, err := s.assembler.CreateTask(ctx, userID, assembler.CreateTaskArgs{
		Title:       input.Title,
		Phrase:      input.Phrase,
		Description: input.Description,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	})
	if err != nil {
		s.logOutcome(assembler.OpCreateTask, userID, "", err)
		return nil, err
	}
	return &t, nil
}

// CompleteTaskInput contains parameters for the CompleteTask operation.
// Exactly one of ID and Title is required.
type CompleteTaskInput struct {
	UserID string
	ID     string
	Title  string
}

// CompleteTask marks a pending task completed by id or by approximate title.
func (s *Service) CompleteTask(ctx context.Context, input CompleteTaskInput) (*tasks.Match, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	m, err := s.assembler.CompleteTask(ctx, userID, assembler.CompleteTaskArgs{ID: input.ID, Title: input.Title})
	if err != nil {
		s.logOutcome(assembler.OpCompleteTask, userID, "", err)
		return nil, err
	}
	return &m, nil
}

// ListTasksInput contains parameters for the ListTasks operation.
type ListTasksInput struct {
	UserID           string
	IncludeCompleted bool
}

// ListTasksOutput contains the result of the ListTasks operation.
type ListTasksOutput struct {
	Tasks   []tasks.Task `json:"tasks"`
	Pending int          `json:"pending"`
}

// ListTasks returns pending tasks in priority order, followed by completed
// tasks (most recently completed first) when requested.
func (s *Service) ListTasks(ctx context.Context, input ListTasksInput) (*ListTasksOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}

	pending, err := s.tasks.Pending(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &ListTasksOutput{Tasks: append([]tasks.Task{}, pending...), Pending: len(pending)}
	if !input.IncludeCompleted {
		return out, nil
	}

	all, err := db.LoadTasks(ctx, s.db, userID, true)
	if err != nil {
		return nil, err
	}
	var done []tasks.Task
	for _, t := range all {
		if !t.Pending() {
			done = append(done, t)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].CompletedAt.After(*done[j].CompletedAt)
	})
	out.Tasks = append(out.Tasks, done...)
	return out, nil
}
