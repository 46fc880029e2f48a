package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, user_id, panel_subscription_uuid, start_date, end_date, duration_months, is_active, provider, auto_renew_enabled, created_at, updated_at`

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.PanelSubscriptionUUID, &s.StartDate, &s.EndDate,
		&s.DurationMonths, &s.IsActive, &s.Provider, &s.AutoRenewEnabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  panel_subscription_uuid=$3, end_date=$5, duration_months=$6, is_active=$7,
  provider=$8, auto_renew_enabled=$9, updated_at=$11;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PanelSubscriptionUUID, s.StartDate, s.EndDate,
		s.DurationMonths, s.IsActive, s.Provider, s.AutoRenewEnabled, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions
 WHERE user_id=$1 AND is_active AND end_date > NOW()
 ORDER BY end_date DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) CancelActiveWithGrace(ctx context.Context, tx repository.Tx, userID int64, graceEnd time.Time) (int, error) {
	const q = `
UPDATE subscriptions
   SET end_date = LEAST(end_date, $2),
       auto_renew_enabled = FALSE,
       updated_at = NOW()
 WHERE user_id = $1 AND is_active AND end_date > NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, userID, graceEnd)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(cmd.RowsAffected()), nil
}
