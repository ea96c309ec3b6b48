package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Executor is the subset of DB/Tx the repositories run statements through. It
// lets a repository participate in a transaction carried on the context
// without knowing whether one is open.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

// ExecutorFromContext returns the open transaction carried on ctx, or db when
// no transaction is open.
func ExecutorFromContext(ctx context.Context, db DB) Executor {
	tx, ok := ctx.Value(txKey).(Tx)
	if !ok || tx == nil || !tx.IsOpen() {
		return db
	}

	status, ok := ctx.Value(txStatusKey).(string)
	if !ok || status != "open" {
		return db
	}

	return tx
}
