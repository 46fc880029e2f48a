package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

// PurchaseRequest describes one payment the user asked to start.
type PurchaseRequest struct {
	UserID    int64
	Provider  model.Provider
	Months    int
	Amount    int64 // minor units
	Currency  string
	PromoCode string // optional, validated before the ledger row is written
	ReturnURL string
	AutoRenew bool
}

// PurchaseResult hands back what the bot needs to continue the conversation.
type PurchaseResult struct {
	LedgerID string
	PayURL   string // empty for manual transfer
}

// PurchaseUseCase starts payments: it writes the ledger pre-image, asks the
// provider's gateway for a hosted payment, and durably records the provider's
// id before the pay URL ever reaches the user. A notification arriving ahead
// of our own bookkeeping therefore always finds its row.
type PurchaseUseCase struct {
	payments repository.PaymentRepository
	promos   repository.PromoCodeRepository
	gateways map[model.Provider]adapter.PaymentGateway
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewPurchaseUseCase(
	payments repository.PaymentRepository,
	promos repository.PromoCodeRepository,
	gateways map[model.Provider]adapter.PaymentGateway,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *PurchaseUseCase {
	return &PurchaseUseCase{payments: payments, promos: promos, gateways: gateways, tm: tm, log: logger}
}

func (u *PurchaseUseCase) Start(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.UserID == 0 || req.Months <= 0 || req.Amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	gw, ok := u.gateways[req.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not enabled: %w", req.Provider, domain.ErrInvalidArgument)
	}

	var promoID *int64
	if req.PromoCode != "" {
		code, err := u.promos.FindByCode(ctx, nil, req.PromoCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrPromoInactive
			}
			return nil, err
		}
		if !code.Redeemable(time.Now().UTC()) {
			return nil, domain.ErrPromoInactive
		}
		promoID = &code.ID
	}

	now := time.Now().UTC()
	p := &model.Payment{
		ID:          model.NewLedgerID(),
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Provider:    req.Provider,
		Status:      model.PaymentStatusCreated,
		Months:      req.Months,
		PromoCodeID: promoID,
		Description: fmt.Sprintf("Subscription for %d month(s)", req.Months),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}

	ppid, payURL, err := gw.CreatePayment(ctx, adapter.CreatePaymentRequest{
		LedgerID:    p.ID,
		UserID:      p.UserID,
		Months:      p.Months,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: p.Description,
		PromoCodeID: promoID,
		ReturnURL:   req.ReturnURL,
		SaveMethod:  req.AutoRenew,
	})
	if err != nil {
		if uerr := u.payments.UpdateStatus(ctx, nil, p.ID, model.PaymentStatusFailedCreation, nil); uerr != nil {
			u.log.Error().Err(uerr).Str("ledger_id", p.ID).Msg("failed to record creation failure")
		}
		return nil, fmt.Errorf("create payment with %s: %w", req.Provider, err)
	}

	// The awaiting transition is the point of no return: once committed, any
	// webhook for this ppid resolves. Only after it succeeds does the user
	// get the URL.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var id *string
		if ppid != "" {
			id = &ppid
		}
		applied, err := u.payments.UpdateStatusIfNotTerminal(ctx, tx, p.ID, model.PaymentStatusAwaitingProvider, id)
		if err != nil {
			return err
		}
		if !applied {
			// A fast webhook settled the row between CreatePayment and here.
			// That is fine, the money path won.
			u.log.Info().Str("ledger_id", p.ID).Msg("payment settled before initiation bookkeeping finished")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().
		Str("ledger_id", p.ID).
		Str("provider", string(req.Provider)).
		Int64("user_id", req.UserID).
		Int64("amount", req.Amount).
		Msg("payment initiated")
	return &PurchaseResult{LedgerID: p.ID, PayURL: payURL}, nil
}
