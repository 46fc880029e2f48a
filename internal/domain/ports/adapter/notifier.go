package adapter

import (
	"context"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// Notifier delivers payment outcomes to the user and to the operations log
// channel. All methods are best-effort: a notification failure is logged by
// the caller and never treated as a failure of the payment pipeline.
type Notifier interface {
	// PaymentProcessed informs the paying user about the activation result.
	PaymentProcessed(ctx context.Context, out *model.ActivationOutcome) error
	// OpsEvent posts an operational event (received payments, terminal
	// business failures needing manual reconciliation) to the log channel.
	OpsEvent(ctx context.Context, text string) error
}
