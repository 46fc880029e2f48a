package repository

import (
	"context"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	// FindByID returns domain.ErrNotFound for unknown users.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
}
