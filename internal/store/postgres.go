package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// postgresDialect maps each store to a schema inside one database.
type postgresDialect struct {
	url string
}

func (d *postgresDialect) name() string { return "postgres" }

func (d *postgresDialect) open(ctx context.Context, _ string) (*sql.DB, error) {
	db, err := sql.Open("pgx", d.url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (d *postgresDialect) prepare(ctx context.Context, q querier, store string) error {
	_, err := q.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(store))
	return err
}

func (d *postgresDialect) table(store, table string) string {
	return quoteIdent(store) + "." + quoteIdent(table)
}

func (d *postgresDialect) tableExists(ctx context.Context, q querier, store, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, store, table).Scan(&exists)
	return exists, err
}

func (d *postgresDialect) columns(ctx context.Context, q querier, store, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, store, table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (d *postgresDialect) exportOrder() string { return "" }
