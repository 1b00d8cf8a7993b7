package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/quire/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 3

// FileName is the database file inside the base directory.
const FileName = "quire.db"

// Init initializes the SQLite database at baseDir/quire.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.quire.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
// Timestamps are stored as unix milliseconds.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: sessions, preferences, drafts, entries, tasks
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id         TEXT PRIMARY KEY,
		  user_id    TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_created
		ON sessions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS preferences (
		  user_id    TEXT NOT NULL,
		  key        TEXT NOT NULL,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL,
		  PRIMARY KEY (user_id, key)
		);

		CREATE TABLE IF NOT EXISTS drafts (
		  session_id TEXT PRIMARY KEY,
		  user_id    TEXT NOT NULL,
		  draft_json TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
		  id              TEXT PRIMARY KEY,
		  user_id         TEXT NOT NULL,
		  session_id      TEXT NOT NULL,
		  created_at      INTEGER NOT NULL,
		  raw_text        TEXT NOT NULL,
		  structured_json TEXT NOT NULL,
		  sections_text   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_user_created
		ON entries(user_id, created_at);

		CREATE TABLE IF NOT EXISTS tasks (
		  id           TEXT PRIMARY KEY,
		  user_id      TEXT NOT NULL,
		  title        TEXT NOT NULL,
		  description  TEXT,
		  priority     INTEGER NOT NULL,
		  due_date     INTEGER,
		  created_at   INTEGER NOT NULL,
		  completed_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_user_pending
		ON tasks(user_id, priority)
		WHERE completed_at IS NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: full-text index over entries
	if version < 2 {
		schema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		  raw_text,
		  sections_text,
		  content='entries',
		  content_rowid='rowid'
		);

		CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		  INSERT INTO entries_fts(rowid, raw_text, sections_text)
		  VALUES (new.rowid, new.raw_text, new.sections_text);
		END;

		INSERT INTO entries_fts(entries_fts) VALUES ('rebuild');
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	// Migration 2 -> 3: draft revisions for conditional checkpoints
	if version < 3 {
		if _, err := db.Exec(`ALTER TABLE drafts ADD COLUMN revision INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("migration 3 failed: %w", err)
		}
		if err := SetUserVersion(db, 3); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
