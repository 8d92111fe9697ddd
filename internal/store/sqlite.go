package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"storyloop/internal/runstate"
	"storyloop/internal/story"
)

// DefaultSQLitePath is the SQLite store location relative to the project root.
const DefaultSQLitePath = ".storyloop/state.db"

// SQLiteStore keeps the snapshot in a SQLite database: one row per story, one
// run state row and a version counter.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stories_status ON stories(status);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('version', 0);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	return nil
}

// Load reads every record inside one read transaction.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	snap := NewSnapshot()
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&snap.Version); err != nil {
		return nil, fmt.Errorf("failed to read store version: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, data FROM stories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var st story.Story
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("failed to parse story %s: %w", id, err)
		}
		snap.Stories[id] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var runData string
	err = tx.QueryRowContext(ctx, `SELECT data FROM run_state WHERE id = 1`).Scan(&runData)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read run state: %w", err)
	default:
		var run runstate.State
		if err := json.Unmarshal([]byte(runData), &run); err != nil {
			return nil, fmt.Errorf("failed to parse run state: %w", err)
		}
		run.Normalize()
		snap.Run = &run
	}

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	return snap, nil
}

// Commit replaces every record in one transaction guarded by the version row.
func (s *SQLiteStore) Commit(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE meta SET value = value + 1 WHERE key = 'version' AND value = ?`, snap.Version)
	if err != nil {
		return fmt.Errorf("failed to advance store version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: loaded version %d is stale", ErrConflict, snap.Version)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stories`); err != nil {
		return fmt.Errorf("failed to write stories: %w", err)
	}
	for _, st := range snap.Stories.Sorted() {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal story %s: %w", st.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stories (id, status, priority, data) VALUES (?, ?, ?, ?)`,
			st.ID, string(st.Status), st.Priority, string(data),
		); err != nil {
			return fmt.Errorf("failed to write story %s: %w", st.ID, err)
		}
	}

	runData, err := json.Marshal(snap.Run)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_state (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(runData),
	); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	snap.Version++
	return nil
}
