// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records batch runs and their per-job outcomes in a SQLite
// database under the output directory, so failed jobs can be listed after
// the process exits.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperfetch/pkg/types"
)

const (
	ledgerDir = ".paperfetch"
	dbFile    = "ledger.db"
)

// ErrNoRuns is returned by LastRun on an empty ledger.
var ErrNoRuns = errors.New("no runs recorded")

// Run summarizes one batch invocation.
type Run struct {
	ID         string
	Manifest   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
}

// Ledger wraps the run database.
type Ledger struct {
	db *sql.DB
}

// Path returns the database path for an output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, ledgerDir, dbFile)
}

// Open opens or creates the ledger for outputDir.
func Open(outputDir string) (*Ledger, error) {
	dbPath := Path(outputDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One connection serializes writes from concurrent jobs.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			manifest TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			stem TEXT NOT NULL,
			doi TEXT,
			pmid TEXT,
			pmcid TEXT,
			url TEXT,
			title TEXT,
			status TEXT NOT NULL,
			source TEXT,
			backend TEXT,
			reason TEXT,
			elapsed_ms INTEGER,
			PRIMARY KEY (run_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(run_id, status)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// StartRun inserts a new run and returns it with a fresh ID.
func (l *Ledger) StartRun(ctx context.Context, manifest string, total int) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Manifest:  manifest,
		StartedAt: time.Now().UTC(),
		Total:     total,
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, manifest, started_at, total) VALUES (?, ?, ?, ?)`,
		run.ID, run.Manifest, run.StartedAt.Format(time.RFC3339Nano), run.Total)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// RecordJob stores the outcome of one job. Recording the same job index
// twice keeps the later outcome.
func (l *Ledger) RecordJob(ctx context.Context, runID string, r types.JobResult) error {
	ids := r.Job.IDs
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs
			(run_id, idx, stem, doi, pmid, pmcid, url, title, status, source, backend, reason, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Job.Index, r.Job.Stem, ids.DOI, ids.PMID, ids.PMCID, ids.URL, r.Job.Title,
		string(r.Status), r.Source, r.Backend, r.Reason, r.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording job %d: %w", r.Job.Index, err)
	}
	return nil
}

// FinishRun stamps the run with its completion time and tallies.
func (l *Ledger) FinishRun(ctx context.Context, runID string, succeeded, failed int) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), succeeded, failed, runID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: not found", runID)
	}
	return nil
}

// LastRun returns the most recently started run.
func (l *Ledger) LastRun(ctx context.Context) (Run, error) {
	var (
		run               Run
		started, finished sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, manifest, started_at, finished_at, total, succeeded, failed
			FROM runs ORDER BY rowid DESC LIMIT 1`,
	).Scan(&run.ID, &run.Manifest, &started, &finished, &run.Total, &run.Succeeded, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("querying last run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}

// Failures lists the failed jobs of a run in job order.
func (l *Ledger) Failures(ctx context.Context, runID string) ([]types.JobResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT idx, stem, doi, pmid, pmcid, url, title, status, source, backend, reason, elapsed_ms
			FROM jobs WHERE run_id = ? AND status = ? ORDER BY idx`,
		runID, string(types.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var out []types.JobResult
	for rows.Next() {
		var (
			r                            types.JobResult
			doi, pmid, pmcid, url, title sql.NullString
			status                       string
			source, backend, reason      sql.NullString
			elapsedMS                    sql.NullInt64
		)
		if err := rows.Scan(&r.Job.Index, &r.Job.Stem, &doi, &pmid, &pmcid, &url, &title,
			&status, &source, &backend, &reason, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		r.Job.IDs = types.Identifiers{DOI: doi.String, PMID: pmid.String, PMCID: pmcid.String, URL: url.String}
		r.Job.Title = title.String
		r.Status = types.JobStatus(status)
		r.Source = source.String
		r.Backend = backend.String
		r.Reason = reason.String
		r.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
