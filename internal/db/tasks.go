package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/tasks"
)

// SaveTask inserts or replaces a task.
func SaveTask(ctx context.Context, db *sql.DB, t tasks.Task) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, description, priority, due_date, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  title = excluded.title,
		  description = excluded.description,
		  priority = excluded.priority,
		  due_date = excluded.due_date,
		  completed_at = excluded.completed_at
	`, t.ID, t.UserID, t.Title, toNullString(t.Description), t.Priority,
		toNullMillis(t.DueDate), toMillis(t.CreatedAt), toNullMillis(t.CompletedAt))
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadTasks returns a user's tasks in creation order. Completed tasks are
// included only when includeCompleted is set.
func LoadTasks(ctx context.Context, db *sql.DB, userID string, includeCompleted bool) ([]tasks.Task, error) {
	query := `
		SELECT id, user_id, title, description, priority, due_date, created_at, completed_at
		FROM tasks
		WHERE user_id = ?
	`
	if !includeCompleted {
		query += " AND completed_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		var (
			t           tasks.Task
			description sql.NullString
			dueDate     sql.NullInt64
			createdAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &description, &t.Priority,
			&dueDate, &createdAt, &completedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		t.Description = fromNullString(description)
		t.DueDate = fromNullMillis(dueDate)
		t.CreatedAt = fromMillis(createdAt)
		t.CompletedAt = fromNullMillis(completedAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}
