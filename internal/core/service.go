package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ingestpipe/internal/archive"
	"github.com/JonMunkholm/ingestpipe/internal/config"
	"github.com/JonMunkholm/ingestpipe/internal/journal"
	"github.com/JonMunkholm/ingestpipe/internal/layout"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
	"github.com/JonMunkholm/ingestpipe/internal/schema"
	"github.com/JonMunkholm/ingestpipe/internal/store"
	"github.com/JonMunkholm/ingestpipe/internal/validate"
)

// Journal stages for the steps that are not validation stages.
const (
	StageArchive = "archive"
	StageLoad    = "load"
)

// Service runs the ingestion pipeline for registered datasets.
type Service struct {
	cfg      config.Config
	catalog  *schema.Catalog
	store    *store.Store
	recorder Recorder
	limiter  *RunLimiter
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records run history. Without it runs are only logged.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLimiter shares a limiter between services.
func WithLimiter(l *RunLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithClock replaces time.Now for run stamps and archive buckets.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over st using the paths and pipeline settings
// in cfg.
func NewService(cfg config.Config, st *store.Store, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		catalog: schema.NewCatalog(cfg.Paths.SchemaDir),
		store:   st,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewRunLimiter(cfg.Pipeline.RunMaxWait)
	}
	return s
}

// Limiter returns the run limiter, for health reporting and drain on
// shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// StoreDriver names the backend tables are loaded into.
func (s *Service) StoreDriver() string {
	return s.store.Driver()
}

// ListDatasets returns every registered dataset.
func (s *Service) ListDatasets() []Dataset {
	return All()
}

func (s *Service) dataset(name string) (Dataset, layout.Layout, error) {
	ds, ok := Get(name)
	if !ok {
		return Dataset{}, layout.Layout{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	root := s.cfg.Paths.DataPath(ds.Name)
	if root == "" {
		return Dataset{}, layout.Layout{}, fmt.Errorf("%w: no data path configured for %q", ErrUnknownDataset, name)
	}
	return ds, layout.New(root), nil
}

// Run executes one ingestion run for the named dataset:
//
//  1. skip if staging holds no files
//  2. load the schema descriptor
//  3. archive the previous run's artifacts
//  4. validate column count, then fully missing columns, then fill blanks
//  5. evolve the table and load every surviving file
//  6. export the snapshot and move loaded files to processed
//
// Rejected files never fail the run. The returned result is non-nil whenever
// the run started, including when err is set.
func (s *Service) Run(ctx context.Context, name string) (*RunResult, error) {
	return s.execute(ctx, name, s.limiter.Acquire)
}

// runIfIdle is Run without waiting: a busy slot fails at once with
// ErrRunInProgress.
func (s *Service) runIfIdle(ctx context.Context, name string) (*RunResult, error) {
	return s.execute(ctx, name, func(_ context.Context, dataset, runID string) error {
		if !s.limiter.TryAcquire(dataset, runID) {
			return ErrRunInProgress
		}
		return nil
	})
}

type acquireFunc func(ctx context.Context, dataset, runID string) error

func (s *Service) execute(ctx context.Context, name string, acquire acquireFunc) (*RunResult, error) {
	ds, l, err := s.dataset(name)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "dataset", ds.Name)

	if err := acquire(ctx, ds.Name, runID); err != nil {
		logger.Warn("run slot unavailable", "error", err)
		return nil, err
	}
	defer s.limiter.Release(ds.Name)

	started := s.now()
	res := &RunResult{RunID: runID, Dataset: ds.Name, StartedAt: started}
	logger.Info("run started", "root", l.Root)

	if s.recorder != nil {
		if err := s.recorder.StartRun(ctx, runID, ds.Name, started); err != nil {
			logger.Warn("journal start failed", "error", err)
		}
	}

	runErr := s.run(ctx, ds, l, res)

	res.Duration = s.now().Sub(started)
	switch {
	case runErr != nil:
		res.Status = StatusFailed
		res.Error = runErr.Error()
		logger.Error("run failed", "error", runErr, "duration", res.Duration)
	case res.Status == "":
		res.Status = StatusSucceeded
		logger.Info("run complete",
			"rows", res.Rows,
			"loaded", len(res.Loaded),
			"rejected", len(res.Rejected),
			"snapshot_rows", res.SnapshotRows,
			"duration", res.Duration,
		)
	}

	if s.recorder != nil {
		if err := s.recorder.FinishRun(ctx, runID, res.Status, runErr, s.now()); err != nil {
			logger.Warn("journal finish failed", "error", err)
		}
	}
	return res, runErr
}

func (s *Service) run(ctx context.Context, ds Dataset, l layout.Layout, res *RunResult) error {
	logger := logging.WithFields(ctx, "dataset", ds.Name)

	staged, err := layout.HasFiles(l.Incoming())
	if err != nil {
		return fmt.Errorf("check staging: %w", err)
	}
	if !staged {
		res.Status = StatusSkipped
		logger.Info("no staged files, run skipped", "dir", l.Incoming())
		return nil
	}

	desc, err := s.catalog.Load(ds.SchemaID)
	if err != nil {
		return fmt.Errorf("load schema %s: %w", ds.SchemaID, err)
	}

	if err := s.archive(ctx, l, res); err != nil {
		return err
	}

	if err := s.validate(ctx, l, desc, res); err != nil {
		return err
	}

	evo, err := s.store.EnsureTable(ctx, ds.Store, ds.Table, desc.Columns)
	if err != nil {
		return err
	}
	res.AddedColumns = evo.Added

	report, err := s.store.LoadFiles(ctx, ds.Store, ds.Table, l, desc.Names())
	if report != nil {
		for _, f := range report.Loaded {
			res.Loaded = append(res.Loaded, FileOutcome{File: f.File, Stage: StageLoad, Rows: f.Rows})
			s.record(ctx, journal.FileRecord{
				RunID: res.RunID, File: f.File, Stage: StageLoad,
				Outcome: journal.OutcomeLoaded, Rows: f.Rows,
			})
		}
		for _, ie := range report.Rejected {
			s.reject(ctx, res, FileOutcome{File: ie.File, Stage: StageLoad, Reason: ie.Error()})
		}
		res.Rows = report.Rows()
	}
	if err != nil {
		return err
	}

	snapshot := l.SnapshotPath(s.cfg.Pipeline.SnapshotFile)
	n, exportErr := s.store.ExportSnapshot(ctx, ds.Store, ds.Table, snapshot)
	if exportErr == nil {
		res.SnapshotPath = snapshot
		res.SnapshotRows = n
	}

	if err := s.moveProcessed(l, res); err != nil {
		return errors.Join(err, exportErr)
	}
	return exportErr
}

func (s *Service) archive(ctx context.Context, l layout.Layout, res *RunResult) error {
	started := func() time.Time { return res.StartedAt }
	summary, err := archive.NewManager(l, archive.WithClock(started)).Archive(ctx)
	if err != nil {
		return err
	}
	res.Archived = summary.Moved()
	for _, b := range summary.Buckets {
		for _, name := range b.Moved {
			s.record(ctx, journal.FileRecord{
				RunID: res.RunID, File: name, Stage: StageArchive,
				Outcome: journal.OutcomeArchived, Reason: b.Category,
			})
		}
	}
	return nil
}

// validate runs the three stages strictly in order; each lists staging anew
// so it only sees files the previous stage left behind.
func (s *Service) validate(ctx context.Context, l layout.Layout, desc *schema.Descriptor, res *RunResult) error {
	v := validate.New(l, s.cfg.Pipeline.MissingSentinel)

	stages := []func(context.Context) (*validate.Report, error){
		func(ctx context.Context) (*validate.Report, error) {
			return v.ValidateColumnCount(ctx, desc.NumberOfColumns)
		},
		v.ValidateNoFullyMissingColumn,
		v.FillMissingWithSentinel,
	}

	for _, stage := range stages {
		report, err := stage(ctx)
		if report != nil {
			for _, fe := range report.Rejected {
				s.reject(ctx, res, FileOutcome{File: fe.File, Stage: fe.Stage, Reason: fe.Reason})
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) moveProcessed(l layout.Layout, res *RunResult) error {
	names, err := layout.ListFiles(l.Incoming())
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := layout.MoveInto(filepath.Join(l.Incoming(), name), l.Processed()); err != nil {
			return fmt.Errorf("move %s to processed: %w", name, err)
		}
		res.Processed = append(res.Processed, name)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, res *RunResult, out FileOutcome) {
	res.Rejected = append(res.Rejected, out)
	s.record(ctx, journal.FileRecord{
		RunID: res.RunID, File: out.File, Stage: out.Stage,
		Outcome: journal.OutcomeRejected, Reason: out.Reason,
	})
}

// record writes to the journal. Journal failures are logged, never returned.
func (s *Service) record(ctx context.Context, rec journal.FileRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordFile(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("journal record failed", "file", rec.File, "stage", rec.Stage, "error", err)
	}
}

// Archive moves the dataset's previous artifacts into a fresh bucket without
// running the rest of the pipeline.
func (s *Service) Archive(ctx context.Context, name string) (*archive.Summary, error) {
	ds, l, err := s.dataset(name)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx, ds.Name, "archive"); err != nil {
		return nil, err
	}
	defer s.limiter.Release(ds.Name)

	return archive.NewManager(l, archive.WithClock(s.now)).Archive(ctx)
}

// Export rewrites the dataset's snapshot from the current table contents.
// It returns the snapshot path and its data row count.
func (s *Service) Export(ctx context.Context, name string) (string, int, error) {
	ds, l, err := s.dataset(name)
	if err != nil {
		return "", 0, err
	}
	if err := s.limiter.Acquire(ctx, ds.Name, "export"); err != nil {
		return "", 0, err
	}
	defer s.limiter.Release(ds.Name)

	path := l.SnapshotPath(s.cfg.Pipeline.SnapshotFile)
	n, err := s.store.ExportSnapshot(ctx, ds.Store, ds.Table, path)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}
