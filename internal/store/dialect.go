package store

import (
	"context"
	"database/sql"
	"strings"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect isolates what differs between backends: how a named store is
// opened and addressed, and how the catalog is inspected.
type dialect interface {
	name() string
	open(ctx context.Context, store string) (*sql.DB, error)
	// prepare readies a freshly opened store for DDL.
	prepare(ctx context.Context, q querier, store string) error
	// table returns the quoted, qualified table reference.
	table(store, table string) string
	tableExists(ctx context.Context, q querier, store, table string) (bool, error)
	columns(ctx context.Context, q querier, store, table string) ([]string, error)
	// exportOrder is appended to the snapshot query.
	exportOrder() string
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
