package repository

import (
	"context"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

type PromoCodeRepository interface {
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PromoCode, error)

	// ConsumeActivation atomically increments the code's activation counter
	// and returns its bonus days. Fails closed: domain.ErrPromoExhausted when
	// no activations remain, domain.ErrPromoInactive for disabled/expired
	// codes. The increment and the check are one guarded UPDATE.
	ConsumeActivation(ctx context.Context, tx Tx, promoCodeID int64) (bonusDays int, err error)
}
