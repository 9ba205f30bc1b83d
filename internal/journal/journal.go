// Package journal keeps a ledger of ingestion runs and the fate of every
// file each run touched. It is a single sqlite file migrated with goose.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/JonMunkholm/ingestpipe/internal/store"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// File outcomes.
const (
	OutcomeRejected = "rejected"
	OutcomeLoaded   = "loaded"
	OutcomeArchived = "archived"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs ledger.
type Run struct {
	ID         string     `json:"id"`
	Dataset    string     `json:"dataset"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// FileRecord is what happened to one file in one stage of a run.
type FileRecord struct {
	RunID   string `json:"runId"`
	File    string `json:"file"`
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Rows    int    `json:"rows"`
}

// Journal is the run ledger.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := store.OpenSQLite(ctx, path, 0)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records a new run in the running state.
func (j *Journal) StartRun(ctx context.Context, id, dataset string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, status, started_at) VALUES (?, ?, ?, ?)`,
		id, dataset, StatusRunning, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// RecordFile appends a per-file outcome to a run.
func (j *Journal) RecordFile(ctx context.Context, rec FileRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_files (run_id, file_name, stage, outcome, reason, row_count) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.File, rec.Stage, rec.Outcome, rec.Reason, rec.Rows)
	if err != nil {
		return fmt.Errorf("record file %s: %w", rec.File, err)
	}
	return nil
}

// FinishRun sets the final status of a run. runErr may be nil.
func (j *Journal) FinishRun(ctx context.Context, id, status string, runErr error, finishedAt time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, formatTime(finishedAt), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// PruneRuns deletes finished runs that started before the cutoff, along with
// their file records. Returns the number of runs deleted.
func (j *Journal) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ? AND status <> ?`,
		formatTime(before), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// GetRun returns one run.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, dataset, status, started_at, finished_at, error FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs first. limit <= 0 means 50.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, dataset, status, started_at, finished_at, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunFiles returns the file records of a run in insertion order.
func (j *Journal) RunFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, file_name, stage, outcome, reason, row_count
		 FROM run_files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("run files %s: %w", runID, err)
	}
	defer rows.Close()

	var recs []FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.RunID, &rec.File, &rec.Stage, &rec.Outcome, &rec.Reason, &rec.Rows); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Dataset, &r.Status, &started, &finished, &r.Error); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: finished_at: %w", r.ID, err)
		}
		r.FinishedAt = &ft
	}
	return &r, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
