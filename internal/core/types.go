package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/ingestpipe/internal/journal"
)

// Dataset binds a dataset name to its schema descriptor, store and table.
type Dataset struct {
	Name     string // "training"
	Label    string // Display name
	SchemaID string // Descriptor id in the schema catalog
	Store    string // Relational store name
	Table    string // Table the dataset accumulates into
}

// Run statuses, shared with the journal.
const (
	StatusSucceeded = journal.StatusSucceeded
	StatusFailed    = journal.StatusFailed
	StatusSkipped   = journal.StatusSkipped
)

// FileOutcome records what one stage did with one file.
type FileOutcome struct {
	File   string `json:"file"`
	Stage  string `json:"stage"`
	Reason string `json:"reason,omitempty"`
	Rows   int    `json:"rows,omitempty"`
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID     string        `json:"runId"`
	Dataset   string        `json:"dataset"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	Archived     int           `json:"archived"`
	Rejected     []FileOutcome `json:"rejected,omitempty"`
	Loaded       []FileOutcome `json:"loaded,omitempty"`
	Rows         int           `json:"rows"`
	AddedColumns []string      `json:"addedColumns,omitempty"`
	Processed    []string      `json:"processed,omitempty"`

	SnapshotPath string `json:"snapshotPath,omitempty"`
	SnapshotRows int    `json:"snapshotRows"`

	Error string `json:"error,omitempty"`
}

// Recorder persists run history. *journal.Journal satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, id, dataset string, startedAt time.Time) error
	RecordFile(ctx context.Context, rec journal.FileRecord) error
	FinishRun(ctx context.Context, id, status string, runErr error, finishedAt time.Time) error
}
