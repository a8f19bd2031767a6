// Package repository provides the Postgres data access layer.
//
// Queries holds the hand-written SQL for each table and runs against either
// a *sql.DB or a *sql.Tx. Store adapts Queries to the domain store
// interfaces and owns transaction boundaries.
package repository

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by Queries.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs the SQL for entitlements, activity records and jobs.
type Queries struct {
	db DBTX
}

// New creates Queries backed by db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// WithTx begins a transaction, runs fn with transactional Queries, and then
// commits on success or rolls back on error or panic. Panics are rethrown.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(q *Queries) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(New(tx))
	return err
}
