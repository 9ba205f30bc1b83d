package core

// scheduler.go runs the pipeline on an interval for long-running serve mode.
//
// Each cycle:
//  1. Runs every registered dataset in name order; datasets with nothing
//     staged are skipped by the run itself, and a dataset whose trigger
//     finds the run slot busy is deferred to the next cycle without waiting
//  2. Prunes journal runs older than the retention window, when configured
//
// Failed runs and prune errors are logged; the scheduler keeps going.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ScheduleConfig holds configuration for the run scheduler.
type ScheduleConfig struct {
	Interval  time.Duration // How often to run (required, > 0)
	Retention time.Duration // Journal retention; 0 keeps every run
}

// Pruner deletes journal history. *journal.Journal satisfies it.
type Pruner interface {
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// StartRunScheduler runs every dataset immediately, then every
// cfg.Interval, until ctx is cancelled. It blocks.
func (s *Service) StartRunScheduler(ctx context.Context, cfg ScheduleConfig) {
	slog.Info("run scheduler started",
		"interval", cfg.Interval,
		"retention", cfg.Retention,
	)

	s.runScheduledCycle(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledCycle(ctx, cfg)
		}
	}
}

// runScheduledCycle performs one run per dataset plus one prune.
func (s *Service) runScheduledCycle(ctx context.Context, cfg ScheduleConfig) {
	start := time.Now()

	for _, ds := range All() {
		if ctx.Err() != nil {
			return
		}
		res, err := s.runIfIdle(ctx, ds.Name)
		switch {
		case errors.Is(err, ErrRunInProgress):
			slog.Info("scheduled run deferred, slot busy", "dataset", ds.Name)
		case err != nil:
			slog.Error("scheduled run failed", "dataset", ds.Name, "error", err, "code", MapError(err).Code)
		default:
			slog.Debug("scheduled run finished", "dataset", ds.Name, "status", res.Status)
		}
	}

	if cfg.Retention > 0 {
		if p, ok := s.recorder.(Pruner); ok {
			pruned, err := p.PruneRuns(ctx, s.now().Add(-cfg.Retention))
			if err != nil {
				slog.Error("journal prune failed", "error", err)
			} else if pruned > 0 {
				slog.Info("pruned journal runs", "runs_pruned", pruned)
			}
		}
	}

	slog.Debug("scheduled cycle completed", "duration_ms", time.Since(start).Milliseconds())
}
