package core

// run_limiter.go serializes pipeline runs.
//
// Runs share staging directories and stores, so only one may be active at a
// time across the process. The limiter is a semaphore with a single slot by
// default: a second trigger waits up to maxWait for the slot and then fails
// with ErrRunInProgress. WaitForDrain lets the server finish an active run
// before shutting down.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when the run slot stays occupied for longer
// than the limiter's wait time.
var ErrRunInProgress = errors.New("run already in progress")

// DefaultRunWait is how long to wait for the run slot before rejecting.
const DefaultRunWait = 30 * time.Second

// RunLimiter bounds the number of concurrent pipeline runs.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active map[string]string // dataset -> run id
}

// NewRunLimiter creates a limiter that admits one run at a time.
func NewRunLimiter(maxWait time.Duration) *RunLimiter {
	if maxWait <= 0 {
		maxWait = DefaultRunWait
	}
	return &RunLimiter{
		slots:   make(chan struct{}, 1),
		maxWait: maxWait,
		active:  make(map[string]string),
	}
}

// Acquire waits for the run slot. The caller must call Release with the
// same dataset once the run finishes.
func (l *RunLimiter) Acquire(ctx context.Context, dataset, runID string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active[dataset] = runID
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRunInProgress
	}
}

// TryAcquire takes the slot only if it is free.
func (l *RunLimiter) TryAcquire(dataset, runID string) bool {
	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active[dataset] = runID
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees the slot taken for dataset.
func (l *RunLimiter) Release(dataset string) {
	l.mu.Lock()
	delete(l.active, dataset)
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of runs in progress.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// WaitForDrain blocks until no run is active or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter for health reporting.
type RunLimiterStatus struct {
	Busy   bool              `json:"busy"`
	Active map[string]string `json:"active,omitempty"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	active := make(map[string]string, len(l.active))
	for k, v := range l.active {
		active[k] = v
	}
	return RunLimiterStatus{Busy: len(active) > 0, Active: active}
}
