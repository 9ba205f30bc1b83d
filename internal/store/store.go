// Package store persists validated rows into a named relational store.
//
// Every operation opens its own connection, does its work inside one
// transaction and closes the connection before returning. No connection
// outlives the call that opened it, so there is no atomicity across calls:
// a crash between EnsureTable and LoadFiles can leave an empty table behind.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/JonMunkholm/ingestpipe/internal/config"
)

var (
	// ErrConnectionFailed is returned when a store cannot be opened.
	ErrConnectionFailed = errors.New("store connection failed")

	// ErrTableEvolution is returned when creating or altering a table fails
	// for a reason other than the column already existing.
	ErrTableEvolution = errors.New("table evolution failed")

	// ErrRowInsert marks a file whose rows could not be inserted. The file's
	// transaction was rolled back.
	ErrRowInsert = errors.New("row insert failed")

	// ErrExport is returned when the snapshot cannot be written.
	ErrExport = errors.New("snapshot export failed")
)

// PredictionStore is rebuilt from scratch on every EnsureTable call.
// Every other store accumulates rows across runs.
const PredictionStore = "prediction"

var (
	storeName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	colType   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\([0-9, ]+\))?$`)
)

// EvolutionError names the column whose DDL failed.
type EvolutionError struct {
	Table  string
	Column string
	Err    error
}

func (e *EvolutionError) Error() string {
	return fmt.Sprintf("evolve %s: column %q: %v", e.Table, e.Column, e.Err)
}

func (e *EvolutionError) Unwrap() []error { return []error{ErrTableEvolution, e.Err} }

// InsertError names the file, and the line when known, that failed to load.
type InsertError struct {
	File string
	Line int
	Err  error
}

func (e *InsertError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load %s: line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.File, e.Err)
}

func (e *InsertError) Unwrap() []error { return []error{ErrRowInsert, e.Err} }

// Options selects and configures the backend.
type Options struct {
	Driver      string
	Dir         string
	URL         string
	BusyTimeout time.Duration
}

// OptionsFromConfig maps the store section of the application config.
func OptionsFromConfig(c config.StoreConfig) Options {
	return Options{
		Driver:      c.Driver,
		Dir:         c.Dir,
		URL:         c.URL,
		BusyTimeout: c.BusyTimeout,
	}
}

// Store is the table store. It holds no open connections.
type Store struct {
	dialect dialect
}

// New returns a Store for the configured driver.
func New(opts Options) (*Store, error) {
	switch opts.Driver {
	case config.DriverSQLite, "":
		if opts.Dir == "" {
			return nil, errors.New("store: sqlite requires a directory")
		}
		return &Store{dialect: &sqliteDialect{dir: opts.Dir, busyTimeout: opts.BusyTimeout}}, nil
	case config.DriverPostgres:
		if opts.URL == "" {
			return nil, errors.New("store: postgres requires a connection URL")
		}
		return &Store{dialect: &postgresDialect{url: opts.URL}}, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}

// Driver returns the backend name.
func (s *Store) Driver() string { return s.dialect.name() }

// Connect opens the named store. The caller owns the returned handle and
// must close it.
func (s *Store) Connect(ctx context.Context, store string) (*sql.DB, error) {
	if !storeName.MatchString(store) {
		return nil, fmt.Errorf("%w: invalid store name %q", ErrConnectionFailed, store)
	}
	db, err := s.dialect.open(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, store, err)
	}
	return db, nil
}

// Columns returns the table's column names in table order. A missing table
// yields nil.
func (s *Store) Columns(ctx context.Context, store, table string) ([]string, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	db, err := s.Connect(ctx, store)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return s.dialect.columns(ctx, db, store, table)
}

// Count returns the number of rows in the table.
func (s *Store) Count(ctx context.Context, store, table string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	db, err := s.Connect(ctx, store)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int64
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.dialect.table(store, table)).Scan(&n)
	return n, err
}

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}
