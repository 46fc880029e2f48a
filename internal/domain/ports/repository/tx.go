package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle threaded through repository calls.
// The concrete type is infra-defined (pgx.Tx for Postgres). Repositories
// MUST gracefully accept a nil Tx and fall back to their non-transactional
// path; use cases never inspect the handle.
type Tx interface{}

// TransactionManager executes a function inside one database transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
// Keeping the handle opaque keeps use-case interfaces free of driver types
// while still letting repositories run SELECT ... FOR UPDATE under a tx.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
