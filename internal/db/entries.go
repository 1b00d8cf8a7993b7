package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// Snippet markers wrap matched terms in FTS5 snippets. They are replaced
// after HTML escaping so stored text cannot inject markup.
const (
	SnippetOpen  = "[[[B]]]"
	SnippetClose = "[[[/B]]]"
)

// CommitEntry stores a finalized entry and removes the session's draft
// checkpoint in one transaction.
func CommitEntry(ctx context.Context, db *sql.DB, e journal.Entry) error {
	return commitEntry(ctx, db, e, func(tx *sql.Tx) error {
		if err := deleteDraft(ctx, tx, e.SessionID); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	})
}

// CommitDraft stores the entry finalized from the checkpoint at revision and
// removes that checkpoint in one transaction. If the checkpoint changed or is
// gone, nothing is stored and a DRAFT_CONFLICT error is returned.
func CommitDraft(ctx context.Context, db *sql.DB, e journal.Entry, revision int64) error {
	return commitEntry(ctx, db, e, func(tx *sql.Tx) error {
		removed, err := deleteDraftAt(ctx, tx, e.SessionID, revision)
		if err != nil {
			return errors.NewInternal(err)
		}
		if !removed {
			return errors.NewDraftConflict(e.SessionID)
		}
		return nil
	})
}

func commitEntry(ctx context.Context, db *sql.DB, e journal.Entry, clearDraft func(*sql.Tx) error) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearDraft(tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, session_id, created_at, raw_text, structured_json, sections_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.SessionID, toMillis(e.CreatedAt), e.RawText, string(data), sectionsText(e.Data))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// sectionsText flattens structured sections into indexable text.
func sectionsText(d journal.StructuredData) string {
	var b strings.Builder
	for _, name := range d.SectionOrder() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(d.Sections[name].String())
	}
	return b.String()
}

const entryColumns = `id, user_id, session_id, created_at, raw_text, structured_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (journal.Entry, error) {
	var (
		e         journal.Entry
		createdAt int64
		data      string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.SessionID, &createdAt, &e.RawText, &data); err != nil {
		return journal.Entry{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return journal.Entry{}, err
	}
	return e, nil
}

// GetEntry retrieves one of a user's entries. Entries of other users are NOT_FOUND.
func GetEntry(ctx context.Context, db *sql.DB, userID, id string) (journal.Entry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ? AND user_id = ?`, id, userID,
	)
	e, err := scanEntry(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return journal.Entry{}, errors.NewNotFound("entry", id)
		}
		return journal.Entry{}, errors.NewInternal(err)
	}
	return e, nil
}

// ListEntries returns a user's entries created in [from, to], oldest first.
func ListEntries(ctx context.Context, db *sql.DB, userID string, from, to time.Time) ([]journal.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE user_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC
	`, userID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectEntries(rows)
}

// RecentEntries returns a page of a user's entries, newest first, and the
// user's total entry count.
func RecentEntries(ctx context.Context, db *sql.DB, userID string, limit, offset int) ([]journal.Entry, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func collectEntries(rows *sql.Rows) ([]journal.Entry, error) {
	defer rows.Close()
	var out []journal.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SearchEntries runs a full-text query over a user's entries, best match
// first. Snippets carry SnippetOpen/SnippetClose around matched terms.
func SearchEntries(ctx context.Context, db *sql.DB, userID, query string, limit int) ([]journal.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT e.id, e.session_id, e.created_at,
		  snippet(entries_fts, -1, '`+SnippetOpen+`', '`+SnippetClose+`', '...', 16)
		FROM entries_fts
		JOIN entries e ON e.rowid = entries_fts.rowid
		WHERE entries_fts MATCH ? AND e.user_id = ?
		ORDER BY bm25(entries_fts), e.created_at DESC
		LIMIT ?
	`, match, userID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var hits []journal.SearchHit
	for rows.Next() {
		var (
			h         journal.SearchHit
			createdAt int64
		)
		if err := rows.Scan(&h.ID, &h.SessionID, &createdAt, &h.Snippet); err != nil {
			return nil, errors.NewInternal(err)
		}
		h.CreatedAt = fromMillis(createdAt)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return hits, nil
}

// ftsQuery quotes every whitespace-separated term so user input is never
// parsed as FTS5 syntax. Terms are ANDed.
func ftsQuery(q string) string {
	var terms []string
	for _, f := range strings.Fields(q) {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}

// EachEntry streams a user's entries, oldest first, stopping at the first
// error returned by fn.
func EachEntry(ctx context.Context, db *sql.DB, userID string, fn func(journal.Entry) error) error {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
