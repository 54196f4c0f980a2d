// Package journal records every reconciliation cycle in a local SQLite file.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	entries     INTEGER NOT NULL DEFAULT 0,
	changed     INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	chunks      INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sync_runs_started_idx ON sync_runs (started_at DESC);
`

var _ core.SyncJournal = (*SQLiteJournal)(nil)

type SQLiteJournal struct {
	db *sql.DB
}

// Open creates the database file and its parent directory when missing.
func Open(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Begin inserts the run as in progress.
func (j *SQLiteJournal) Begin(ctx context.Context, run *models.SyncRun) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, entries, changed) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Entries, boolToInt(run.Changed),
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run started with Begin.
func (j *SQLiteJournal) Finish(ctx context.Context, run *models.SyncRun) error {
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET finished_at = ?, entries = ?, changed = ?, processed = ?, failed = ?, skipped = ?, chunks = ?, error = ?
		WHERE id = ?`,
		finished, run.Entries, boolToInt(run.Changed), run.Processed, run.Failed, run.Skipped, run.Chunks, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync run %s not found", run.ID)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, entries, changed, processed, failed, skipped, chunks, error
		FROM sync_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var out []models.SyncRun
	for rows.Next() {
		var (
			r        models.SyncRun
			started  int64
			finished sql.NullInt64
			changed  int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Entries, &changed,
			&r.Processed, &r.Failed, &r.Skipped, &r.Chunks, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			r.FinishedAt = &t
		}
		r.Changed = changed != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync runs: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
