package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ingestpipe/internal/logging"
	"github.com/JonMunkholm/ingestpipe/internal/schema"
)

// EvolutionResult describes what EnsureTable changed.
type EvolutionResult struct {
	Table   string
	Dropped bool
	Created bool
	Added   []string
	Present []string
}

// EnsureTable makes table hold at least the given columns, in order.
//
// The prediction store's table is dropped first and rebuilt. Otherwise a
// missing table is created with the first column still absent and the rest
// are added one by one. Columns that already exist, compared
// case-insensitively, are left alone, so repeated calls converge on the union
// of every column ever requested. All DDL commits together.
func (s *Store) EnsureTable(ctx context.Context, store, table string, columns []schema.Column) (*EvolutionResult, error) {
	if err := checkTable(table); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTableEvolution, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s: no columns requested", ErrTableEvolution, table)
	}
	for _, col := range columns {
		if !colType.MatchString(col.Type) {
			return nil, &EvolutionError{Table: table, Column: col.Name, Err: fmt.Errorf("invalid type %q", col.Type)}
		}
	}

	logger := logging.WithFields(ctx, "stage", "ensure_table", "store", store, "table", table)

	db, err := s.Connect(ctx, store)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrTableEvolution, err)
	}
	defer tx.Rollback()

	if err := s.dialect.prepare(ctx, tx, store); err != nil {
		return nil, fmt.Errorf("%w: prepare %s: %v", ErrTableEvolution, store, err)
	}

	ref := s.dialect.table(store, table)
	res := &EvolutionResult{Table: table}

	if store == PredictionStore {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ref); err != nil {
			return nil, fmt.Errorf("%w: drop %s: %v", ErrTableEvolution, table, err)
		}
		res.Dropped = true
	}

	exists, err := s.dialect.tableExists(ctx, tx, store, table)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %v", ErrTableEvolution, table, err)
	}

	have := make(map[string]bool)
	if exists {
		cols, err := s.dialect.columns(ctx, tx, store, table)
		if err != nil {
			return nil, fmt.Errorf("%w: inspect %s: %v", ErrTableEvolution, table, err)
		}
		for _, c := range cols {
			have[strings.ToLower(c)] = true
		}
	}

	for _, col := range columns {
		key := strings.ToLower(col.Name)
		if have[key] {
			res.Present = append(res.Present, col.Name)
			continue
		}

		def := quoteIdent(col.Name) + " " + col.Type
		var stmt string
		if exists {
			stmt = "ALTER TABLE " + ref + " ADD COLUMN " + def
		} else {
			stmt = "CREATE TABLE " + ref + " (" + def + ")"
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			logger.Error("schema evolution failed", "column", col.Name, "error", err)
			return nil, &EvolutionError{Table: table, Column: col.Name, Err: err}
		}
		if !exists {
			res.Created = true
			exists = true
		}
		have[key] = true
		res.Added = append(res.Added, col.Name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrTableEvolution, err)
	}

	logger.Info("table ready",
		"dropped", res.Dropped,
		"created", res.Created,
		"added", len(res.Added),
		"present", len(res.Present),
	)
	return res, nil
}

// IsEvolutionError reports whether err is a column-level DDL failure and
// returns it.
func IsEvolutionError(err error) (*EvolutionError, bool) {
	var ee *EvolutionError
	ok := errors.As(err, &ee)
	return ee, ok
}
