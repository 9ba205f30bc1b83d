// Package validate checks staged files against a schema descriptor and moves
// the ones that fail into the reject directory.
//
// The three stages run strictly in order: column count, fully-missing column,
// sentinel fill. Each stage lists the staging directory once on entry, so a
// stage only sees files that survived the stage before it.
package validate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ingestpipe/internal/csv"
	"github.com/JonMunkholm/ingestpipe/internal/layout"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
)

// ErrRejected marks a file-scoped validation failure. The file was moved to
// the reject directory; the batch continues.
var ErrRejected = errors.New("file rejected")

// Stage names, as recorded in reports and the run journal.
const (
	StageColumnCount   = "column_count"
	StageMissingColumn = "missing_column"
	StageFill          = "fill"
)

// FileError describes one rejected file.
type FileError struct {
	File   string
	Stage  string
	Reason string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.File, e.Reason)
}

func (e *FileError) Unwrap() error { return ErrRejected }

// Report summarizes one stage over the staging directory.
type Report struct {
	Stage    string
	Checked  int
	Passed   []string
	Rejected []*FileError
	// Rewritten lists files the fill stage changed.
	Rewritten []string
}

// Validator runs the validation stages for one staging root.
type Validator struct {
	layout   layout.Layout
	sentinel string
}

// New returns a validator over l that fills blanks with sentinel.
func New(l layout.Layout, sentinel string) *Validator {
	return &Validator{layout: l, sentinel: sentinel}
}

// verdict is a per-file stage result: a non-empty reject reason moves the
// file to rejects; rewritten marks a fill change.
type verdict struct {
	reject    string
	rewritten bool
}

// ValidateColumnCount rejects every staged file whose header width differs
// from expected. A file that does not parse is rejected too.
func (v *Validator) ValidateColumnCount(ctx context.Context, expected int) (*Report, error) {
	return v.eachFile(ctx, StageColumnCount, func(path string) (verdict, error) {
		t, err := csv.ReadFile(path)
		if err != nil {
			if csv.IsParseError(err) {
				return verdict{reject: err.Error()}, nil
			}
			return verdict{}, err
		}
		if t.Width() != expected {
			return verdict{reject: fmt.Sprintf("expected %d columns, found %d", expected, t.Width())}, nil
		}
		return verdict{}, nil
	})
}

// ValidateNoFullyMissingColumn rejects every staged file that has a column
// with no present value. Checking a file stops at its first such column.
func (v *Validator) ValidateNoFullyMissingColumn(ctx context.Context) (*Report, error) {
	return v.eachFile(ctx, StageMissingColumn, func(path string) (verdict, error) {
		t, err := csv.ReadFile(path)
		if err != nil {
			if csv.IsParseError(err) {
				return verdict{reject: err.Error()}, nil
			}
			return verdict{}, err
		}
		if col, ok := v.firstEmptyColumn(t); ok {
			return verdict{reject: fmt.Sprintf("all values in column %q are missing", col)}, nil
		}
		return verdict{}, nil
	})
}

// FillMissingWithSentinel replaces blank cells with the sentinel and rewrites
// the file in place. Files without blanks are left untouched, so a second
// pass changes nothing.
func (v *Validator) FillMissingWithSentinel(ctx context.Context) (*Report, error) {
	return v.eachFile(ctx, StageFill, func(path string) (verdict, error) {
		t, err := csv.ReadFile(path)
		if err != nil {
			if csv.IsParseError(err) {
				return verdict{reject: err.Error()}, nil
			}
			return verdict{}, err
		}

		changed := false
		for _, row := range t.Rows {
			for i, cell := range row {
				if strings.TrimSpace(cell) == "" {
					row[i] = v.sentinel
					changed = true
				}
			}
		}
		if !changed {
			return verdict{}, nil
		}
		if err := csv.WriteFile(path, t); err != nil {
			return verdict{}, fmt.Errorf("rewrite %s: %w", filepath.Base(path), err)
		}
		return verdict{rewritten: true}, nil
	})
}

// isMissing treats blank cells and the sentinel itself as missing values.
func (v *Validator) isMissing(cell string) bool {
	trimmed := strings.TrimSpace(cell)
	return trimmed == "" || trimmed == v.sentinel
}

func (v *Validator) firstEmptyColumn(t *csv.Table) (string, bool) {
	for col := 0; col < t.Width(); col++ {
		present := false
		for _, row := range t.Rows {
			if !v.isMissing(row[col]) {
				present = true
				break
			}
		}
		if !present {
			return t.Header[col], true
		}
	}
	return "", false
}

// eachFile applies check to every file present in staging at entry. A check
// error is scoped to its file: the file is rejected with the error as reason.
// Only listing staging or moving a file into rejects aborts the stage.
func (v *Validator) eachFile(ctx context.Context, stage string, check func(path string) (verdict, error)) (*Report, error) {
	logger := logging.WithFields(ctx, "stage", stage, "dir", v.layout.Incoming())

	names, err := layout.ListFiles(v.layout.Incoming())
	if err != nil {
		return nil, err
	}

	report := &Report{Stage: stage}
	for _, name := range names {
		report.Checked++
		path := filepath.Join(v.layout.Incoming(), name)

		res, err := check(path)
		if err != nil {
			logger.Warn("file unreadable", "file", name, "error", err)
			res = verdict{reject: err.Error()}
		}

		if res.reject != "" {
			if _, err := layout.MoveInto(path, v.layout.Rejects()); err != nil {
				return report, fmt.Errorf("%s: quarantine %s: %w", stage, name, err)
			}
			fe := &FileError{File: name, Stage: stage, Reason: res.reject}
			report.Rejected = append(report.Rejected, fe)
			logger.Info("file rejected", "file", name, "reason", res.reject)
			continue
		}

		report.Passed = append(report.Passed, name)
		if res.rewritten {
			report.Rewritten = append(report.Rewritten, name)
			logger.Debug("missing values filled", "file", name)
		}
	}

	logger.Info("stage complete",
		"checked", report.Checked,
		"passed", len(report.Passed),
		"rejected", len(report.Rejected),
	)
	return report, nil
}
