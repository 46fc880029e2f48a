package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
)

// NoopNotifier logs instead of sending. Used in dev mode and as the fallback
// when the bot is unavailable; the payment pipeline never depends on delivery.
type NoopNotifier struct {
	log *zerolog.Logger
}

var _ adapter.Notifier = (*NoopNotifier)(nil)

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) PaymentProcessed(ctx context.Context, out *model.ActivationOutcome) error {
	n.log.Info().
		Str("ledger_id", out.LedgerID).
		Int64("user_id", out.UserID).
		Bool("duplicate", out.Duplicate).
		Bool("canceled", out.Canceled).
		Msg("notifier(noop): payment processed")
	return nil
}

func (n *NoopNotifier) OpsEvent(ctx context.Context, text string) error {
	n.log.Info().Str("text", text).Msg("notifier(noop): ops event")
	return nil
}
