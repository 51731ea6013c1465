// Package history persists one summary row per finished run into a local
// SQLite database, serving the history command and the retention pruner.
// Per-action detail stays in the report files; this is the queryable index.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/logsweep/logsweep/pkg/report"
	"github.com/logsweep/logsweep/pkg/util"
)

// schema holds the SQL statements creating the run history tables.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    job TEXT NOT NULL,
    mode TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    dry_run BOOLEAN NOT NULL,
    state TEXT NOT NULL,
    started_ms INTEGER NOT NULL,
    finished_ms INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    files_deleted INTEGER NOT NULL DEFAULT 0,
    files_skipped INTEGER NOT NULL DEFAULT 0,
    dirs_pruned INTEGER NOT NULL DEFAULT 0,
    dirs_skipped INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_job_started ON runs(job, started_ms DESC);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ms);
`

// DefaultRecentLimit is used when the history command gives no -limit.
const DefaultRecentLimit = 20

// Entry is one persisted run summary.
type Entry struct {
	ID            string
	Job           string
	Mode          string
	Target        string
	DryRun        bool
	State         string
	Started       time.Time
	Finished      time.Time
	Duration      time.Duration
	FilesDeleted  int
	FilesSkipped  int
	DirsPruned    int
	DirsSkipped   int
	Errors        int
	FailureReason string
}

// Store is the run history database. It doubles as a report sink: every
// finished run is recorded through Write.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and prepares the
// schema. WAL mode keeps concurrent run recordings from blocking reads.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Write records one finished run. It satisfies the report sink contract so
// the store can sit in the regular sink fan-out.
func (s *Store) Write(run *report.Run) error {
	query := `
		INSERT INTO runs (
			id, job, mode, target, dry_run, state,
			started_ms, finished_ms, duration_ms,
			files_deleted, files_skipped, dirs_pruned, dirs_skipped, errors,
			failure_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var finishedMs int64
	if !run.Finished.IsZero() {
		finishedMs = run.Finished.UnixMilli()
	}

	_, err := s.db.Exec(query,
		run.ID, run.Job, run.Mode, run.Target, run.DryRun, string(run.State),
		run.Started.UnixMilli(), finishedMs, run.Duration().Milliseconds(),
		run.FilesDeleted, run.FilesSkipped, run.DirsPruned, run.DirsSkipped, run.Errors,
		run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns the newest run summaries, optionally filtered by job name.
// A non-positive limit falls back to DefaultRecentLimit.
func (s *Store) Recent(ctx context.Context, job string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, job, mode, target, dry_run, state,
		       started_ms, finished_ms, duration_ms,
		       files_deleted, files_skipped, dirs_pruned, dirs_skipped, errors,
		       failure_reason
		FROM runs
	`
	args := []any{}
	if job != "" {
		query += " WHERE job = ?"
		args = append(args, job)
	}
	query += " ORDER BY started_ms DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var startedMs, finishedMs, durationMs int64
		if err := rows.Scan(
			&e.ID, &e.Job, &e.Mode, &e.Target, &e.DryRun, &e.State,
			&startedMs, &finishedMs, &durationMs,
			&e.FilesDeleted, &e.FilesSkipped, &e.DirsPruned, &e.DirsSkipped, &e.Errors,
			&e.FailureReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		e.Started = time.UnixMilli(startedMs)
		if finishedMs > 0 {
			e.Finished = time.UnixMilli(finishedMs)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes run rows that started before the cutoff and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune run history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
