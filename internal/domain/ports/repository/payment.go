package repository

import (
	"context"
	"time"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// PaymentRepository persists ledger entries. Rows are append-and-update only;
// nothing ever deletes a ledger entry.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error

	// FindByID locks the row FOR UPDATE when called under a tx.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)

	FindByProviderPaymentID(ctx context.Context, tx Tx, providerPaymentID string) (*model.Payment, error)

	// GetOrCreateByProviderPaymentID inserts p unless a row with the same
	// provider_payment_id already exists, and returns the surviving row.
	// Atomic under concurrent deliveries: the unique index on
	// provider_payment_id plus a conflict-tolerant insert guarantees a single
	// ledger row per external payment. The returned bool is true when this
	// call created the row.
	GetOrCreateByProviderPaymentID(ctx context.Context, tx Tx, p *model.Payment) (*model.Payment, bool, error)

	// UpdateStatusIfNotTerminal transitions status and records the provider
	// payment id, but only when the current status is still non-terminal.
	// Returns false when the row was already terminal.
	UpdateStatusIfNotTerminal(ctx context.Context, tx Tx, id string, status model.PaymentStatus, providerPaymentID *string) (bool, error)

	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PaymentStatus, providerPaymentID *string) error

	// ListAwaitingOlderThan returns stale awaiting_provider rows for the reconciler.
	ListAwaitingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
