package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/dateutil"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

// ActivationUseCase turns a settled ledger entry into access time: it extends
// the user's current period by whole calendar months, or opens a new one.
type ActivationUseCase struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
}

func NewActivationUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger) *ActivationUseCase {
	return &ActivationUseCase{subs: subs, log: logger}
}

// ExtendOrCreate must run inside the same transaction that claims the ledger
// row; the FOR UPDATE read of the current period is what keeps two concurrent
// payments for one user from both extending a stale end date.
func (u *ActivationUseCase) ExtendOrCreate(ctx context.Context, tx repository.Tx, p *model.Payment, autoRenew bool) (*model.Subscription, error) {
	now := time.Now().UTC()

	sub, err := u.subs.FindActiveByUser(ctx, tx, p.UserID)
	switch {
	case err == nil:
		// Extend from the current end date, unless it is already in the past:
		// a lapsed period restarts from now, not from when it expired.
		base := sub.EndDate
		if base.Before(now) {
			base = now
		}
		sub.EndDate = dateutil.AddMonths(base, p.Months)
		sub.DurationMonths += p.Months
		sub.Provider = p.Provider
		sub.IsActive = true
		if autoRenew {
			sub.AutoRenewEnabled = true
		}
		sub.UpdatedAt = now
	case errors.Is(err, domain.ErrNotFound):
		start := now
		sub = &model.Subscription{
			ID:               uuid.NewString(),
			UserID:           p.UserID,
			StartDate:        &start,
			EndDate:          dateutil.AddMonths(now, p.Months),
			DurationMonths:   p.Months,
			IsActive:         true,
			Provider:         p.Provider,
			AutoRenewEnabled: autoRenew,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	default:
		return nil, err
	}

	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	u.log.Info().
		Int64("user_id", p.UserID).
		Str("ledger_id", p.ID).
		Int("months", p.Months).
		Time("end_date", sub.EndDate).
		Msg("subscription period activated")
	return sub, nil
}

// ExtendByDays adds flat bonus days to the user's current period. Used by the
// bonus chain; does nothing and reports ErrNotFound when no period is current.
func (u *ActivationUseCase) ExtendByDays(ctx context.Context, tx repository.Tx, userID int64, days int) (*model.Subscription, error) {
	if days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	sub, err := u.subs.FindActiveByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	sub.EndDate = sub.EndDate.AddDate(0, 0, days)
	sub.UpdatedAt = time.Now().UTC()
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
