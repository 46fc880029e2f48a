package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

var _ repository.ReferralGrantRepository = (*referralGrantRepo)(nil)

type referralGrantRepo struct{ pool *pgxpool.Pool }

func NewReferralGrantRepo(pool *pgxpool.Pool) *referralGrantRepo {
	return &referralGrantRepo{pool: pool}
}

func (r *referralGrantRepo) RecordGrant(ctx context.Context, tx repository.Tx, ledgerID string) (bool, error) {
	const q = `INSERT INTO referral_grants (ledger_id) VALUES ($1) ON CONFLICT (ledger_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, ledgerID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() == 1, nil
}
