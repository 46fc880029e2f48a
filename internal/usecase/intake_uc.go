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

// Locker serializes concurrent deliveries of the same provider payment.
// Satisfied by redis.RedisLocker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Compile-time check
var _ PaymentIntakeUseCase = (*intakeUC)(nil)

// PaymentIntakeUseCase is the idempotency guard and per-event orchestrator:
// it claims a provider event for processing at most once, applies the ledger
// mutation and base activation in one transaction, then runs the best-effort
// bonus chain and notification after commit.
type PaymentIntakeUseCase interface {
	Process(ctx context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error)

	// MarkMetadataFailed records a terminal failed_metadata status for a
	// notification whose round-tripped metadata could not be validated but
	// whose ledger row is still resolvable.
	MarkMetadataFailed(ctx context.Context, ev *model.ProviderEvent) error
}

type intakeUC struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	users     repository.UserRepository
	activator *ActivationUseCase
	bonuses   *BonusChainUseCase
	tm        repository.TransactionManager
	locker    Locker
	panel     adapter.PanelClient
	notify    func(out *model.ActivationOutcome) // post-commit, fire-and-forget
	log       *zerolog.Logger
}

const (
	lockTTL         = 30 * time.Second
	cancelGraceDays = 1
)

func NewPaymentIntakeUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	activator *ActivationUseCase,
	bonuses *BonusChainUseCase,
	tm repository.TransactionManager,
	locker Locker,
	panel adapter.PanelClient,
	notify func(out *model.ActivationOutcome),
	logger *zerolog.Logger,
) *intakeUC {
	if notify == nil {
		notify = func(*model.ActivationOutcome) {}
	}
	return &intakeUC{
		payments: payments, subs: subs, users: users,
		activator: activator, bonuses: bonuses,
		tm: tm, locker: locker, panel: panel, notify: notify, log: logger,
	}
}

func (u *intakeUC) Process(ctx context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error) {
	if ev == nil || ev.Provider == "" {
		return nil, domain.ErrInvalidArgument
	}
	if ev.Outcome == model.OutcomeSubscriptionCanceled {
		return u.processPlatformCancellation(ctx, ev)
	}
	if ev.ProviderPaymentID == "" && ev.LedgerID == "" {
		return nil, domain.ErrInvalidArgument
	}

	// Serialize deliveries per payment, not globally: the redis lock orders
	// duplicate notifications for one provider_payment_id while independent
	// payments proceed concurrently.
	token, err := u.locker.TryLock(ctx, lockKey(ev), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("payment intake: %w", domain.ErrLockUnavailable)
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), lockKey(ev), token); err != nil {
			u.log.Warn().Err(err).Str("key", lockKey(ev)).Msg("unlock failed; lock will expire by TTL")
		}
	}()

	out := &model.ActivationOutcome{Provider: ev.Provider}
	var ledger *model.Payment

	// Core transaction: resolve -> claim -> activate. Commits atomically or
	// rolls back entirely; on rollback we do not acknowledge, the provider's
	// retry redelivers.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.resolveLedger(ctx, tx, ev)
		if err != nil {
			return err
		}
		ledger = p
		out.LedgerID = p.ID
		out.UserID = p.UserID
		out.Amount = p.Amount
		out.Currency = p.Currency
		out.Months = p.Months

		if p.Status.Terminal() {
			// Late duplicate of an already settled payment: acknowledge so
			// the provider stops retrying, mutate nothing.
			out.Duplicate = true
			return nil
		}

		ppid := providerPaymentIDPtr(ev, p)

		if ev.Outcome == model.OutcomeCanceled {
			out.Canceled = true
			return u.payments.UpdateStatus(ctx, tx, p.ID, model.PaymentStatusCanceled, ppid)
		}

		if _, err := u.users.FindByID(ctx, tx, p.UserID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Money was received but there is nobody to grant access to.
				// Terminal business failure: commit the status, report to an
				// operator, never retry.
				out.UserMissing = true
				return u.payments.UpdateStatus(ctx, tx, p.ID, model.PaymentStatusFailedUserMissing, ppid)
			}
			return err
		}

		applied, err := u.payments.UpdateStatusIfNotTerminal(ctx, tx, p.ID, model.PaymentStatusSucceeded, ppid)
		if err != nil {
			return err
		}
		if !applied {
			out.Duplicate = true
			return nil
		}

		// The active-period lookup happens here, after the ledger claim and
		// inside the same transaction, so two concurrent payments for one
		// user cannot both read a stale "current" period.
		sub, err := u.activator.ExtendOrCreate(ctx, tx, p, ev.Meta.AutoRenew)
		if err != nil {
			return err
		}
		out.EndDate = sub.EndDate
		out.FinalEndDate = sub.EndDate
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case out.Duplicate:
		u.log.Info().Str("ledger_id", out.LedgerID).Str("provider", string(out.Provider)).
			Msg("duplicate provider notification acknowledged as no-op")
		return out, nil
	case out.Canceled:
		u.notify(out)
		return out, nil
	case out.UserMissing:
		u.log.Error().Str("ledger_id", out.LedgerID).Int64("user_id", out.UserID).
			Msg("payment received for missing user; needs manual reconciliation")
		u.notify(out)
		return out, nil
	}

	// Money is confirmed and committed; everything from here is best-effort
	// and failure-isolated. Bonus steps run in their own transactions and a
	// failed step is surfaced on the outcome, never rolled back into the core.
	u.bonuses.Apply(ctx, ledger, out)

	if u.panel != nil {
		if link, err := u.panel.AccessLink(ctx, out.UserID); err == nil {
			out.AccessLink = link
		} else {
			u.log.Warn().Err(err).Int64("user_id", out.UserID).Msg("access link unavailable")
		}
	}

	u.notify(out)
	return out, nil
}

// resolveLedger finds the ledger row the event belongs to, lazily creating it
// for provider-initiated flows that never had a local pre-image.
func (u *intakeUC) resolveLedger(ctx context.Context, tx repository.Tx, ev *model.ProviderEvent) (*model.Payment, error) {
	if ev.LedgerID != "" {
		p, err := u.payments.FindByID(ctx, tx, ev.LedgerID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Metadata referenced a row we do not have; fall through to the
		// provider_payment_id path when possible.
	}
	if ev.ProviderPaymentID == "" {
		return nil, domain.ErrNotFound
	}

	if p, err := u.payments.FindByProviderPaymentID(ctx, tx, ev.ProviderPaymentID); err == nil {
		return p, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if ev.Meta.UserID == 0 {
		// Cannot create a ledger row without knowing who paid.
		return nil, domain.ErrNotFound
	}

	now := time.Now().UTC()
	ppid := ev.ProviderPaymentID
	candidate := &model.Payment{
		ID:                model.NewLedgerID(),
		UserID:            ev.Meta.UserID,
		Amount:            ev.Amount,
		Currency:          ev.Currency,
		Provider:          ev.Provider,
		ProviderPaymentID: &ppid,
		Status:            model.PaymentStatusAwaitingProvider,
		Months:            monthsOrDefault(ev.Meta.Months),
		PromoCodeID:       ev.Meta.PromoCodeID,
		Description:       fmt.Sprintf("%s payment %s", ev.Provider, ev.ProviderPaymentID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	p, created, err := u.payments.GetOrCreateByProviderPaymentID(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		u.log.Info().Str("ledger_id", p.ID).Str("provider_payment_id", ppid).
			Str("provider", string(ev.Provider)).Msg("ledger entry created lazily from provider event")
	}
	return p, nil
}

func (u *intakeUC) processPlatformCancellation(ctx context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error) {
	if ev.Meta.UserID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(ev), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("platform cancellation: %w", domain.ErrLockUnavailable)
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), lockKey(ev), token); err != nil {
			u.log.Warn().Err(err).Str("key", lockKey(ev)).Msg("unlock failed; lock will expire by TTL")
		}
	}()

	out := &model.ActivationOutcome{Provider: ev.Provider, UserID: ev.Meta.UserID, Canceled: true}
	graceEnd := time.Now().UTC().AddDate(0, 0, cancelGraceDays)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		n, err := u.subs.CancelActiveWithGrace(ctx, tx, ev.Meta.UserID, graceEnd)
		if err != nil {
			return err
		}
		if n > 0 {
			out.EndDate = graceEnd
			out.FinalEndDate = graceEnd
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Int64("user_id", ev.Meta.UserID).Time("grace_end", graceEnd).
		Str("provider", string(ev.Provider)).Msg("subscription cancelled with grace period")
	u.notify(out)
	return out, nil
}

func (u *intakeUC) MarkMetadataFailed(ctx context.Context, ev *model.ProviderEvent) error {
	if ev == nil || ev.LedgerID == "" {
		return domain.ErrInvalidArgument
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, ev.LedgerID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return nil
		}
		_, err = u.payments.UpdateStatusIfNotTerminal(ctx, tx, p.ID, model.PaymentStatusFailedMetadata, providerPaymentIDPtr(ev, p))
		return err
	})
}

func lockKey(ev *model.ProviderEvent) string {
	id := ev.ProviderPaymentID
	if id == "" {
		id = ev.LedgerID
	}
	if ev.Outcome == model.OutcomeSubscriptionCanceled {
		id = fmt.Sprintf("cancel:%d", ev.Meta.UserID)
	}
	return fmt.Sprintf("paylock:%s:%s", ev.Provider, id)
}

func providerPaymentIDPtr(ev *model.ProviderEvent, p *model.Payment) *string {
	if ev.ProviderPaymentID != "" {
		id := ev.ProviderPaymentID
		return &id
	}
	return p.ProviderPaymentID
}

func monthsOrDefault(months int) int {
	if months <= 0 {
		return 1
	}
	return months
}
