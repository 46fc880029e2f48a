package repository

import (
	"context"
	"time"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// SubscriptionRepository persists access periods. Periods are created and
// extended by the activator; they are deactivated, never deleted.
type SubscriptionRepository interface {
	// Save upserts by subscription id.
	Save(ctx context.Context, tx Tx, s *model.Subscription) error

	// FindActiveByUser returns the user's current period (is_active and
	// end_date in the future), locking it FOR UPDATE when called under a tx.
	// domain.ErrNotFound when the user has no current period.
	FindActiveByUser(ctx context.Context, tx Tx, userID int64) (*model.Subscription, error)

	// CancelActiveWithGrace clamps all of the user's active periods to the
	// grace end date and clears the auto-renew flag. Returns rows updated.
	CancelActiveWithGrace(ctx context.Context, tx Tx, userID int64, graceEnd time.Time) (int, error)
}
