package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

// TransferUseCase handles phone-transfer payments, the one flow where a human
// operator is the "provider". The user requests a transfer, sends money out of
// band, and an admin approves or rejects. Approval and rejection are rendered
// as canonical provider events and fed through the same intake pipeline as any
// webhook, so they get the identical idempotency and activation semantics.
type TransferUseCase struct {
	payments repository.PaymentRepository
	intake   PaymentIntakeUseCase
	log      *zerolog.Logger
}

func NewTransferUseCase(payments repository.PaymentRepository, intake PaymentIntakeUseCase, logger *zerolog.Logger) *TransferUseCase {
	return &TransferUseCase{payments: payments, intake: intake, log: logger}
}

// CreateRequest opens a pending ledger row for a transfer the user promised
// to make. The synthetic provider payment id is stable so repeated admin
// actions on one request dedupe like repeated webhooks.
func (u *TransferUseCase) CreateRequest(ctx context.Context, userID int64, months int, amount int64, currency string) (*model.Payment, error) {
	if userID == 0 || months <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	id := model.NewLedgerID()
	ppid := manualPaymentID(id)
	p := &model.Payment{
		ID:                id,
		UserID:            userID,
		Amount:            amount,
		Currency:          currency,
		Provider:          model.ProviderManual,
		ProviderPaymentID: &ppid,
		Status:            model.PaymentStatusAwaitingProvider,
		Months:            months,
		Description:       fmt.Sprintf("Phone transfer, %d month(s)", months),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("ledger_id", p.ID).Int64("user_id", userID).Int64("amount", amount).
		Msg("phone transfer requested, awaiting admin confirmation")
	return p, nil
}

// Approve settles the transfer as succeeded on behalf of the confirming admin.
func (u *TransferUseCase) Approve(ctx context.Context, ledgerID string, adminID int64) (*model.ActivationOutcome, error) {
	return u.settle(ctx, ledgerID, adminID, model.OutcomeSucceeded)
}

// Reject settles the transfer as canceled.
func (u *TransferUseCase) Reject(ctx context.Context, ledgerID string, adminID int64) (*model.ActivationOutcome, error) {
	return u.settle(ctx, ledgerID, adminID, model.OutcomeCanceled)
}

func (u *TransferUseCase) settle(ctx context.Context, ledgerID string, adminID int64, outcome model.EventOutcome) (*model.ActivationOutcome, error) {
	p, err := u.payments.FindByID(ctx, nil, ledgerID)
	if err != nil {
		return nil, err
	}
	if p.Provider != model.ProviderManual {
		return nil, fmt.Errorf("ledger entry %s is not a phone transfer: %w", ledgerID, domain.ErrInvalidArgument)
	}
	u.log.Info().Str("ledger_id", ledgerID).Int64("admin_id", adminID).
		Str("decision", string(outcome)).Msg("phone transfer decided by admin")

	return u.intake.Process(ctx, &model.ProviderEvent{
		Provider:          model.ProviderManual,
		ProviderPaymentID: manualPaymentID(ledgerID),
		LedgerID:          ledgerID,
		Outcome:           outcome,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Meta: model.EventMeta{
			UserID: p.UserID,
			Months: p.Months,
		},
	})
}

func manualPaymentID(ledgerID string) string {
	return "manual:" + ledgerID
}
