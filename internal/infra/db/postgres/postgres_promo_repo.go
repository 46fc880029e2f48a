package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

var _ repository.PromoCodeRepository = (*promoRepo)(nil)

type promoRepo struct{ pool *pgxpool.Pool }

func NewPromoRepo(pool *pgxpool.Pool) *promoRepo {
	return &promoRepo{pool: pool}
}

func (r *promoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	const q = `SELECT id, code, bonus_days, max_activations, current_activations, valid_until, is_active, created_at
 FROM promo_codes WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	c := &model.PromoCode{}
	if err := row.Scan(&c.ID, &c.Code, &c.BonusDays, &c.MaxActivations, &c.CurrentActivations,
		&c.ValidUntil, &c.IsActive, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

// ConsumeActivation is one guarded UPDATE: the activation-limit check and the
// increment cannot be separated by a concurrent redemption, so the last
// activation goes to exactly one caller and everyone else fails closed.
func (r *promoRepo) ConsumeActivation(ctx context.Context, tx repository.Tx, promoCodeID int64) (int, error) {
	const q = `
UPDATE promo_codes
   SET current_activations = current_activations + 1
 WHERE id = $1
   AND is_active
   AND (valid_until IS NULL OR valid_until > NOW())
   AND current_activations < max_activations
RETURNING bonus_days;`

	row, err := pickRow(ctx, r.pool, tx, q, promoCodeID)
	if err != nil {
		return 0, err
	}
	var bonusDays int
	if err := row.Scan(&bonusDays); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, r.classifyRefusal(ctx, tx, promoCodeID)
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return bonusDays, nil
}

// classifyRefusal distinguishes why the guarded consume matched nothing.
func (r *promoRepo) classifyRefusal(ctx context.Context, tx repository.Tx, promoCodeID int64) error {
	const q = `SELECT is_active AND (valid_until IS NULL OR valid_until > NOW()), current_activations < max_activations
 FROM promo_codes WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, promoCodeID)
	if err != nil {
		return err
	}
	var active, remaining bool
	if err := row.Scan(&active, &remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	if !active {
		return domain.ErrPromoInactive
	}
	if !remaining {
		return domain.ErrPromoExhausted
	}
	return domain.ErrOperationFailed
}
