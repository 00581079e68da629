// Package store holds the SQL persistence for sectors, items, stock balances,
// movements, their files and public signing tokens.
package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so helpers can run inside or
// outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dbx wraps db for sqlx helpers. SQLite uses ? placeholders, which is what
// sqlx.In produces for the sqlite3 bind type.
func dbx(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "sqlite3")
}
