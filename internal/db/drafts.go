package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// SaveDraft checkpoints a session draft over the checkpoint at revision prev.
// prev 0 means no checkpoint has been written yet. A checkpoint that moved
// past prev, or disappeared, yields a DRAFT_CONFLICT error and is left as is.
func SaveDraft(ctx context.Context, db *sql.DB, d *draft.Draft, prev int64) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.NewInternal(err)
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	var res sql.Result
	if prev == 0 {
		// Rows written before revisions existed carry revision 0.
		res, err = db.ExecContext(ctx, `
			INSERT INTO drafts (session_id, user_id, draft_json, updated_at, revision) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
			  user_id = excluded.user_id,
			  draft_json = excluded.draft_json,
			  updated_at = excluded.updated_at,
			  revision = excluded.revision
			WHERE drafts.revision = 0
		`, d.SessionID, d.UserID, string(data), toMillis(updated), d.Revision)
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE drafts SET user_id = ?, draft_json = ?, updated_at = ?, revision = ?
			WHERE session_id = ? AND revision = ?
		`, d.UserID, string(data), toMillis(updated), d.Revision, d.SessionID, prev)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewDraftConflict(d.SessionID)
	}
	return nil
}

// LoadDraft returns the checkpointed draft of a session, or nil if none exists.
func LoadDraft(ctx context.Context, db *sql.DB, sessionID string) (*draft.Draft, error) {
	var (
		data     string
		revision int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT draft_json, revision FROM drafts WHERE session_id = ?`, sessionID,
	).Scan(&data, &revision)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewInternal(err)
	}

	var d draft.Draft
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, errors.NewInternal(err)
	}
	if d.Sections == nil {
		d.Sections = map[string]journal.Content{}
	}
	d.Revision = revision
	return &d, nil
}

// deleteDraft removes the checkpoint of a session.
func deleteDraft(ctx context.Context, q queryer, sessionID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM drafts WHERE session_id = ?`, sessionID)
	return err
}

// deleteDraftAt removes the checkpoint of a session if it is still at
// revision. It reports whether a row was removed.
func deleteDraftAt(ctx context.Context, q queryer, sessionID string, revision int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM drafts WHERE session_id = ? AND revision = ?`, sessionID, revision)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
