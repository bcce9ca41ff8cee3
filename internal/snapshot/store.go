// Package snapshot persists the last-uploaded fingerprint per record for one
// company, plus a short history of sync passes for the status command.
//
// Each company gets its own SQLite database file under the data directory.
// The database runs in embedded mode with WAL so the status command can read
// while a sync pass writes. A missing database file is the cold-start case
// and behaves as an empty fingerprint mapping, not an error.
//
// The fingerprint table is replaced wholesale, in one transaction, and only
// after a fully successful upload pass. A failed pass leaves the table
// untouched so the next pass recomputes the same delta.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps one company's snapshot database.
type Store struct {
	conn *sql.DB
	path string
}

// PathFor returns the database path for a company id.
func PathFor(dataDir, companyID string) string {
	return filepath.Join(dataDir, companyID+".db")
}

// Open opens (creating if necessary) the snapshot database at path.
//
// The caller MUST call Close() when done to checkpoint the WAL.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables if they don't exist. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		record_key TEXT PRIMARY KEY,
		digest TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		new_count INTEGER NOT NULL DEFAULT 0,
		changed_count INTEGER NOT NULL DEFAULT 0,
		unchanged_count INTEGER NOT NULL DEFAULT 0,
		uploaded_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return nil
}

// Fingerprints loads the full key→digest mapping. An empty database yields
// an empty (non-nil) map.
func (s *Store) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT record_key, digest FROM fingerprints")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, digest string
		if err := rows.Scan(&key, &digest); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out[key] = digest
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprints: %w", err)
	}
	return out, nil
}

// ReplaceFingerprints swaps the entire mapping for the given one in a
// single transaction. Keys absent from the new mapping simply disappear;
// the middleware never synthesizes delete events from that.
func (s *Store) ReplaceFingerprints(ctx context.Context, fingerprints map[string]string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM fingerprints"); err != nil {
		return fmt.Errorf("failed to clear fingerprints: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO fingerprints (record_key, digest) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, digest := range fingerprints {
		if _, err := stmt.ExecContext(ctx, key, digest); err != nil {
			return fmt.Errorf("failed to insert fingerprint for %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fingerprints: %w", err)
	}
	return nil
}

// Run records the outcome of one sync pass.
type Run struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	New        int
	Changed    int
	Unchanged  int
	Uploaded   int
	Failed     int
	Error      string
}

// RecordRun appends one pass outcome to the run history.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	query := `
	INSERT INTO runs (
		run_id, started_at, finished_at,
		new_count, changed_count, unchanged_count, uploaded_count, failed_count, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.conn.ExecContext(ctx, query,
		run.RunID,
		run.StartedAt.Format(time.RFC3339),
		run.FinishedAt.Format(time.RFC3339),
		run.New,
		run.Changed,
		run.Unchanged,
		run.Uploaded,
		run.Failed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastRun returns the most recently finished pass, or nil when no pass has
// run yet.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	query := `
	SELECT run_id, started_at, finished_at,
	       new_count, changed_count, unchanged_count, uploaded_count, failed_count, error
	FROM runs
	ORDER BY finished_at DESC
	LIMIT 1
	`
	row := s.conn.QueryRowContext(ctx, query)

	var run Run
	var startedAt, finishedAt string
	err := row.Scan(
		&run.RunID, &startedAt, &finishedAt,
		&run.New, &run.Changed, &run.Unchanged, &run.Uploaded, &run.Failed, &run.Error,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, finishedAt); err == nil {
		run.FinishedAt = t
	}
	return &run, nil
}

// RunCount returns the number of recorded passes.
func (s *Store) RunCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
