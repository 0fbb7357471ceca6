package repository

import (
	"context"
	"database/sql"
)

// Store bundles the shared database handle and transaction plumbing for
// all repositories.  Mutating operations of the reservation protocol run
// inside one transaction spanning several repositories; WithTx carries
// the *sql.Tx through the context so that repository methods transparently
// participate in the caller's transaction.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying sql.DB for callers that need raw access,
// such as health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

type txKey struct{}

// WithTx runs fn inside a transaction.  When the context already carries
// a transaction, fn joins it and commit/rollback stays with the outer
// caller.  Otherwise a new transaction is opened, rolled back when fn
// returns an error and committed when it returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// querier is the subset of database/sql satisfied by both *sql.DB and
// *sql.Tx.  Repository methods obtain one via Store.q so the same query
// code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}
