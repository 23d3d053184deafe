// Package history persists run summaries to a local SQLite database so
// successive invocations can be compared.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/report"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	error_class TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_files (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	path        TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_files_run ON run_files(run_id);
`

// RunRecord is one persisted run summary.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Passed     int
	Failed     int
	Skipped    int
	Success    bool
	ErrorClass string
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts the run and its per-file rows in one transaction.
func (s *Store) Record(ctx context.Context, r *report.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	passed, failed, skipped := r.Counts()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, passed, failed, skipped, success, error_class)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID.String(),
		r.Started.UTC().Format(time.RFC3339Nano),
		r.Duration.Milliseconds(),
		passed, failed, skipped,
		boolInt(r.Success()),
		r.Class().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range r.Files {
		fp, ff, fs := f.Counts()
		ferr := ""
		if f.Err != nil {
			ferr = f.Err.Error()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_files (run_id, path, duration_ms, passed, failed, skipped, success, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID.String(),
			f.Path,
			f.Duration.Milliseconds(),
			fp, ff, fs,
			boolInt(f.Success()),
			ferr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file row: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, passed, failed, skipped, success, error_class
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var durationMs int64
		var success int
		if err := rows.Scan(&rec.ID, &started, &durationMs, &rec.Passed, &rec.Failed, &rec.Skipped, &success, &rec.ErrorClass); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Success = success != 0
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// FileHistory returns the recorded outcomes of one scenario file, newest
// first.
func (s *Store) FileHistory(ctx context.Context, path string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.run_id, r.started_at, f.duration_ms, f.passed, f.failed, f.skipped, f.success
		 FROM run_files f JOIN runs r ON r.id = f.run_id
		 WHERE f.path = ? ORDER BY r.started_at DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var durationMs int64
		var success int
		if err := rows.Scan(&rec.ID, &started, &durationMs, &rec.Passed, &rec.Failed, &rec.Skipped, &success); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Success = success != 0
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
