package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/metrics"
)

// BonusChainUseCase runs the best-effort extras after a payment's base
// activation has committed: first the promo bonus, then the referral bonus.
// Each step gets its own transaction; one failing never touches the other and
// never touches the committed base activation.
type BonusChainUseCase struct {
	promos    repository.PromoCodeRepository
	activator *ActivationUseCase
	referrals adapter.ReferralService
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewBonusChainUseCase(
	promos repository.PromoCodeRepository,
	activator *ActivationUseCase,
	referrals adapter.ReferralService,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *BonusChainUseCase {
	return &BonusChainUseCase{promos: promos, activator: activator, referrals: referrals, tm: tm, log: logger}
}

// Apply mutates out in place: applied day counts on success, step errors on
// failure. It never returns an error; by the time it runs the money side is
// settled and only the outcome report can carry what went wrong.
func (u *BonusChainUseCase) Apply(ctx context.Context, p *model.Payment, out *model.ActivationOutcome) {
	if p.PromoCodeID != nil {
		days, err := u.applyPromo(ctx, p.UserID, *p.PromoCodeID)
		metrics.IncBonus("promo", err == nil)
		if err != nil {
			out.PromoErr = err
			u.log.Warn().Err(err).
				Str("ledger_id", p.ID).
				Int64("promo_code_id", *p.PromoCodeID).
				Msg("promo bonus not applied")
		} else {
			out.AppliedPromoDays = days
			out.FinalEndDate = out.FinalEndDate.AddDate(0, 0, days)
		}
	}

	if u.referrals == nil {
		return
	}
	bonus, err := u.referrals.ApplyForPayment(ctx, p.UserID, p.Months, p.ID)
	if err != nil {
		out.ReferralErr = err
		metrics.IncBonus("referral", false)
		u.log.Warn().Err(err).Str("ledger_id", p.ID).Msg("referral bonus not applied")
		return
	}
	if bonus != nil && bonus.RefereeBonusDays > 0 {
		metrics.IncBonus("referral", true)
		out.AppliedReferralDays = bonus.RefereeBonusDays
		if bonus.RefereeNewEndDate != nil {
			out.FinalEndDate = *bonus.RefereeNewEndDate
		} else {
			out.FinalEndDate = out.FinalEndDate.AddDate(0, 0, bonus.RefereeBonusDays)
		}
	}
}

// applyPromo consumes one activation and extends the user's current period,
// both inside a single dedicated transaction. The guarded consume makes
// concurrent redemptions of the last activation fail closed rather than
// oversell the code.
func (u *BonusChainUseCase) applyPromo(ctx context.Context, userID, promoCodeID int64) (int, error) {
	var days int
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		days, err = u.promos.ConsumeActivation(ctx, tx, promoCodeID)
		if err != nil {
			return err
		}
		_, err = u.activator.ExtendByDays(ctx, tx, userID, days)
		return err
	})
	if err != nil {
		return 0, err
	}
	return days, nil
}
