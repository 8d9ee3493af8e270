package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// indexSchema is the run index table. One row per collection run; the files
// themselves stay on disk and the index only answers "what ran when".
const indexSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	folder_id     TEXT NOT NULL,
	query         TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	engines_total INTEGER NOT NULL,
	engines_ok    INTEGER NOT NULL,
	synthesized   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// RunSummary is one row of the run index.
type RunSummary struct {
	RunID        string
	FolderID     string
	Query        string
	StartedAt    time.Time
	EnginesTotal int
	EnginesOK    int
	Synthesized  bool
}

// Index is the SQLite-backed run history.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the run index database. The caller
// must blank-import a sqlite driver:
//
//	import _ "modernc.org/sqlite"
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open index: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("runstore: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstore: index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Record inserts one run row. A zero RunID is filled with a UUIDv7 so rows
// sort by creation even when timestamps collide.
func (ix *Index) Record(ctx context.Context, sum RunSummary) error {
	if sum.RunID == "" {
		sum.RunID = uuid.Must(uuid.NewV7()).String()
	}

	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, folder_id, query, started_at, engines_total, engines_ok, synthesized)
		VALUES (?,?,?,?,?,?,?)`,
		sum.RunID, sum.FolderID, sum.Query, sum.StartedAt.Unix(),
		sum.EnginesTotal, sum.EnginesOK, boolToInt(sum.Synthesized))
	if err != nil {
		return fmt.Errorf("runstore: record run: %w", err)
	}
	return nil
}

// Recent returns the n most recent runs, newest first.
func (ix *Index) Recent(ctx context.Context, n int) ([]RunSummary, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT run_id, folder_id, query, started_at, engines_total, engines_ok, synthesized
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("runstore: query recent: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum     RunSummary
			started int64
			synth   int
		)
		if err := rows.Scan(&sum.RunID, &sum.FolderID, &sum.Query, &started,
			&sum.EnginesTotal, &sum.EnginesOK, &synth); err != nil {
			return nil, fmt.Errorf("runstore: scan run: %w", err)
		}
		sum.StartedAt = time.Unix(started, 0).UTC()
		sum.Synthesized = synth != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
