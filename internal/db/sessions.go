package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/quire/internal/errors"
)

// Session is a stored conversation session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertSession stores a new session.
func InsertSession(ctx context.Context, db *sql.DB, s Session) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		s.ID, s.UserID, toMillis(s.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession retrieves a session by id. A missing session is NOT_FOUND.
func GetSession(ctx context.Context, db *sql.DB, id string) (*Session, error) {
	var (
		s         Session
		createdAt int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &createdAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFound("session", id)
		}
		return nil, errors.NewInternal(err)
	}
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

// ListSessions returns a user's most recent sessions, newest first.
func ListSessions(ctx context.Context, db *sql.DB, userID string, limit int) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, created_at FROM sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s         Session
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &createdAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.CreatedAt = fromMillis(createdAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SetPreference upserts one preference value.
func SetPreference(ctx context.Context, db *sql.DB, userID, key, value string, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, userID, key, value, toMillis(now))
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPreferences returns all preferences of a user. The map is never nil.
func GetPreferences(ctx context.Context, db *sql.DB, userID string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE user_id = ? ORDER BY key`, userID,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.NewInternal(err)
		}
		prefs[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return prefs, nil
}
