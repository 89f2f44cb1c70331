package store

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, so a store can be bound to a
// pool or to a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Atomically runs fn in a new transaction when db is a pool. Any other DBTX,
// such as an open *sql.Tx, is passed to fn as is and the caller owns the
// commit.
func Atomically(ctx context.Context, db DBTX, fn func(ctx context.Context, db DBTX) error) error {
	pool, ok := db.(*sql.DB)
	if !ok {
		return fn(ctx, db)
	}
	return RunInTransaction(ctx, pool, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, tx)
	})
}
