package adapter

import (
	"context"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// CreatePaymentRequest carries everything a gateway needs to open a
// provider-hosted payment. Metadata round-trips through the provider and
// comes back on the webhook, so adapters can resolve the ledger row.
type CreatePaymentRequest struct {
	LedgerID    string
	UserID      int64
	Months      int
	Amount      int64 // minor units
	Currency    string
	Description string
	PromoCodeID *int64
	ReturnURL   string
	SaveMethod  bool // request a reusable payment method for auto-renewal
}

// PaymentGateway is the outbound side of one provider: creating hosted
// payments and fetching payment state for reconciliation. All calls carry an
// explicit timeout and a single retry at the transport level.
type PaymentGateway interface {
	Name() model.Provider

	// CreatePayment registers a payment intent with the provider and returns
	// the provider's payment id plus the URL the user pays at.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (providerPaymentID, payURL string, err error)

	// FetchEvent asks the provider for the current state of a pending ledger
	// row and renders it as a canonical event. domain.ErrNotFound when the
	// provider has not reached a final state yet.
	FetchEvent(ctx context.Context, p *model.Payment) (*model.ProviderEvent, error)
}
