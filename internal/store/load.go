package store

import (
	"context"
	gocsv "encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ingestpipe/internal/csv"
	"github.com/JonMunkholm/ingestpipe/internal/layout"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
)

// FileLoad is a file whose rows all committed.
type FileLoad struct {
	File string
	Rows int
}

// LoadReport summarizes one LoadFiles call.
type LoadReport struct {
	Loaded   []FileLoad
	Rejected []*InsertError
}

// Rows returns the total committed row count.
func (r *LoadReport) Rows() int {
	n := 0
	for _, f := range r.Loaded {
		n += f.Rows
	}
	return n
}

// LoadFiles inserts every file in the staging directory into table, one
// transaction per file. The header row is skipped and every field is
// inserted as a quoted string literal; the store applies its own type
// affinity.
//
// When columns is non-empty the INSERT names them, so files keep loading
// after the table has grown past the file's width.
//
// A file whose parse or insert fails is rolled back in full and moved to the
// reject directory; the batch continues. Only listing the staging directory,
// opening the store, or moving a failed file can fail the call.
func (s *Store) LoadFiles(ctx context.Context, store, table string, l layout.Layout, columns []string) (*LoadReport, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	logger := logging.WithFields(ctx, "stage", "load", "store", store, "table", table)

	names, err := layout.ListFiles(l.Incoming())
	if err != nil {
		return nil, err
	}

	report := &LoadReport{}
	for _, name := range names {
		path := filepath.Join(l.Incoming(), name)

		n, err := s.loadFile(ctx, store, table, path, columns)
		if err != nil {
			if errors.Is(err, ErrConnectionFailed) {
				return report, err
			}
			if _, mvErr := layout.MoveInto(path, l.Rejects()); mvErr != nil {
				return report, fmt.Errorf("quarantine %s: %w", name, mvErr)
			}
			ie := asInsertError(name, err)
			report.Rejected = append(report.Rejected, ie)
			logger.Warn("file rolled back and rejected", "file", name, "line", ie.Line, "error", ie.Err)
			continue
		}

		report.Loaded = append(report.Loaded, FileLoad{File: name, Rows: n})
		logger.Info("file loaded", "file", name, "rows", n)
	}

	logger.Info("load complete",
		"files", len(report.Loaded),
		"rows", report.Rows(),
		"rejected", len(report.Rejected),
	)
	return report, nil
}

// loadFile owns one connection and one transaction. Any error leaves none of
// the file's rows committed.
func (s *Store) loadFile(ctx context.Context, store, table, path string, columns []string) (int, error) {
	name := filepath.Base(path)

	t, err := csv.ReadFile(path)
	if err != nil {
		return 0, &InsertError{File: name, Line: parseLine(err), Err: err}
	}

	db, err := s.Connect(ctx, store)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &InsertError{File: name, Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	prefix := "INSERT INTO " + s.dialect.table(store, table)
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
		}
		prefix += " (" + strings.Join(quoted, ", ") + ")"
	}
	prefix += " VALUES ("

	for i, row := range t.Rows {
		if len(columns) > 0 && len(row) != len(columns) {
			return 0, &InsertError{File: name, Line: t.Line(i),
				Err: fmt.Errorf("row has %d fields, expected %d", len(row), len(columns))}
		}

		values := make([]string, len(row))
		for j, v := range row {
			values[j] = quoteLiteral(v)
		}
		if _, err := tx.ExecContext(ctx, prefix+strings.Join(values, ", ")+")"); err != nil {
			return 0, &InsertError{File: name, Line: t.Line(i), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &InsertError{File: name, Err: fmt.Errorf("commit: %w", err)}
	}
	return len(t.Rows), nil
}

func asInsertError(name string, err error) *InsertError {
	var ie *InsertError
	if errors.As(err, &ie) {
		return ie
	}
	return &InsertError{File: name, Err: err}
}

func parseLine(err error) int {
	var pe *gocsv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
