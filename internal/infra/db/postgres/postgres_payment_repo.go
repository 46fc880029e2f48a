package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

const paymentColumns = `id, user_id, amount, currency, provider, provider_payment_id, status, months, promo_code_id, description, created_at, updated_at`

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Provider, &p.ProviderPaymentID,
		&p.Status, &p.Months, &p.PromoCodeID, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  provider_payment_id=$6, status=$7, promo_code_id=$9, description=$10, updated_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Amount, p.Currency, p.Provider,
		p.ProviderPaymentID, p.Status, p.Months, p.PromoCodeID, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// GetOrCreateByProviderPaymentID races are settled by the partial unique index
// on provider_payment_id: the losing insert hits the conflict, does nothing,
// and re-reads the winner's row.
func (r *paymentRepo) GetOrCreateByProviderPaymentID(ctx context.Context, tx repository.Tx, p *model.Payment) (*model.Payment, bool, error) {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (provider_payment_id) WHERE provider_payment_id IS NOT NULL DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Amount, p.Currency, p.Provider,
		p.ProviderPaymentID, p.Status, p.Months, p.PromoCodeID, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Serializable path: another tx committed the same ppid between
			// our snapshot and the insert.
			existing, ferr := r.FindByProviderPaymentID(ctx, tx, *p.ProviderPaymentID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, false, err
		}
		return nil, false, domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 1 {
		return p, true, nil
	}
	existing, err := r.FindByProviderPaymentID(ctx, tx, *p.ProviderPaymentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateStatusIfNotTerminal atomically transitions status only when the row is
// still settleable. The guard doubles as the idempotency backstop: a duplicate
// delivery that lost the lock race finds the row terminal and affects nothing.
func (r *paymentRepo) UpdateStatusIfNotTerminal(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string,
) (bool, error) {
	const q = `
UPDATE payments
   SET status = $2,
       provider_payment_id = COALESCE($3, provider_payment_id),
       updated_at = NOW()
 WHERE id = $1
   AND status IN ('created','awaiting_provider');`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), providerPaymentID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerPaymentID *string) error {
	const q = `UPDATE payments SET status=$2, provider_payment_id=COALESCE($3, provider_payment_id), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, providerPaymentID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListAwaitingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status='awaiting_provider' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
