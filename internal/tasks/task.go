// Package tasks keeps per-user todo items and completes them by id or by
// approximate title match.
package tasks

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/quire/internal/errors"
)

// Task is a todo item. Lower Priority numbers rank first.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Pending reports whether the task is not completed.
func (t Task) Pending() bool {
	return t.CompletedAt == nil
}

// NewTask is the input to Engine.Create. Zero Priority means "rank last".
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// SortPending orders tasks by priority, then due date (undated last), then
// creation time, then id.
func SortPending(list []Task) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if c := compareDue(a.DueDate, b.DueDate); c != 0 {
			return c < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// compareDue orders due dates ascending with nil after any date.
func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}

func pendingOf(all []Task, userID string) []Task {
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if t.UserID == userID && t.Pending() {
			out = append(out, t)
		}
	}
	return out
}

// ParseDueDate accepts YYYY-MM-DD or RFC 3339. Empty means no due date.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid due_date %q (use YYYY-MM-DD)", s))
	}
	t = t.UTC()
	return &t, nil
}
