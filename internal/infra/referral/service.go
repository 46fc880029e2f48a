package referral

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

// Service grants referral bonuses: when a referred user pays, both the payer
// (referee) and the inviter (referrer) get bonus days. One grant per ledger
// entry, enforced by the grant record's unique key, so redeliveries and
// retries cannot double-grant.
type Service struct {
	users        repository.UserRepository
	subs         repository.SubscriptionRepository
	grants       repository.ReferralGrantRepository
	tm           repository.TransactionManager
	refereeDays  int
	referrerDays int
	log          *zerolog.Logger
}

var _ adapter.ReferralService = (*Service)(nil)

func NewService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	grants repository.ReferralGrantRepository,
	tm repository.TransactionManager,
	refereeDays, referrerDays int,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		users: users, subs: subs, grants: grants, tm: tm,
		refereeDays: refereeDays, referrerDays: referrerDays, log: logger,
	}
}

func (s *Service) ApplyForPayment(ctx context.Context, userID int64, months int, ledgerID string) (*adapter.ReferralBonus, error) {
	user, err := s.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user.ReferredByID == nil {
		return nil, nil // policy does not apply
	}
	referrerID := *user.ReferredByID

	bonus := &adapter.ReferralBonus{}

	// Referee extension, fenced by the grant record in the same tx.
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		granted, err := s.grants.RecordGrant(ctx, tx, ledgerID)
		if err != nil {
			return err
		}
		if !granted {
			return nil // already applied for this ledger entry
		}
		bonus.RefereeBonusDays = s.refereeDays
		end, err := s.extendByDays(ctx, tx, userID, s.refereeDays)
		if err != nil {
			return err
		}
		bonus.RefereeNewEndDate = end
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bonus.RefereeBonusDays == 0 {
		return nil, nil // duplicate, nothing granted
	}

	// Referrer extension is independent: a referrer without a current period
	// simply gets nothing, and a failure here does not undo the referee's.
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		_, err := s.extendByDays(ctx, tx, referrerID, s.referrerDays)
		return err
	})
	switch {
	case err == nil:
		bonus.ReferrerBonusDays = s.referrerDays
	case errors.Is(err, domain.ErrNotFound):
		s.log.Info().Int64("referrer_id", referrerID).Msg("referrer has no current period, bonus skipped")
	default:
		s.log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("referrer bonus not applied")
	}
	return bonus, nil
}

func (s *Service) extendByDays(ctx context.Context, tx repository.Tx, userID int64, days int) (*time.Time, error) {
	sub, err := s.subs.FindActiveByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	sub.EndDate = sub.EndDate.AddDate(0, 0, days)
	sub.UpdatedAt = time.Now().UTC()
	if err := s.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return &sub.EndDate, nil
}
