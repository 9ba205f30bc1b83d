// Package archive sweeps the previous run's artifacts out of a staging
// root's sibling directories into timestamped buckets under R_archive.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/ingestpipe/internal/layout"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
)

// ErrArchive wraps real I/O failures. A name collision at the destination is
// not an error; the file is skipped.
var ErrArchive = errors.New("archive failed")

// StampLayout formats the bucket suffix: <date>_<time>.
const StampLayout = "2006-01-02_15.04.05"

// Summary reports what one archive pass did per category.
type Summary struct {
	Stamp   string
	Buckets []BucketResult
}

// Moved returns the total number of files moved across all categories.
func (s *Summary) Moved() int {
	n := 0
	for _, b := range s.Buckets {
		n += len(b.Moved)
	}
	return n
}

// BucketResult is the outcome for one category.
type BucketResult struct {
	Category string
	Dir      string
	Moved    []string
	Skipped  []string
}

// Manager archives the artifact directories of one staging root.
type Manager struct {
	layout layout.Layout
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for deterministic bucket names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager for l.
func NewManager(l layout.Layout, opts ...Option) *Manager {
	m := &Manager{layout: l, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Archive moves every file in each existing category directory into
// <root>_archive/<prefix><stamp>/. The stamp is taken once, so all buckets of
// one call share it. Buckets are created only when a file is moved into them.
func (m *Manager) Archive(ctx context.Context) (*Summary, error) {
	logger := logging.WithFields(ctx, "stage", "archive", "root", m.layout.Root)

	summary := &Summary{Stamp: m.now().Format(StampLayout)}
	for _, cat := range m.layout.Categories() {
		res, err := m.archiveCategory(cat, summary.Stamp)
		if err != nil {
			return summary, fmt.Errorf("%w: %s: %v", ErrArchive, cat.Name, err)
		}
		summary.Buckets = append(summary.Buckets, res)
		if len(res.Moved) > 0 || len(res.Skipped) > 0 {
			logger.Info("category archived",
				"category", cat.Name,
				"bucket", res.Dir,
				"moved", len(res.Moved),
				"skipped", len(res.Skipped),
			)
		}
	}
	return summary, nil
}

func (m *Manager) archiveCategory(cat layout.Category, stamp string) (BucketResult, error) {
	dest := filepath.Join(m.layout.ArchiveRoot(), cat.Prefix+stamp)
	res := BucketResult{Category: cat.Name, Dir: dest}

	info, err := os.Stat(cat.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%s is not a directory", cat.Dir)
	}

	names, err := layout.ListFiles(cat.Dir)
	if err != nil {
		return res, err
	}

	for _, name := range names {
		target := filepath.Join(dest, name)
		exists, err := layout.Exists(target)
		if err != nil {
			return res, err
		}
		if exists {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return res, err
		}
		if err := layout.Move(filepath.Join(cat.Dir, name), target); err != nil {
			return res, err
		}
		res.Moved = append(res.Moved, name)
	}
	return res, nil
}
