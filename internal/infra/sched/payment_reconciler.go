package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/usecase"
)

// PaymentReconciler periodically scans for stale awaiting_provider ledger rows
// and polls the provider for their final state. This covers lost webhooks and
// crashes between payment creation and notification.
type PaymentReconciler struct {
	intake     usecase.PaymentIntakeUseCase
	payments   repository.PaymentRepository
	gateways   map[model.Provider]adapter.PaymentGateway
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an awaiting row must be to poll
	batchSize  int
	log        *zerolog.Logger
}

func NewPaymentReconciler(
	intake usecase.PaymentIntakeUseCase,
	payments repository.PaymentRepository,
	gateways map[model.Provider]adapter.PaymentGateway,
	interval, staleAfter time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &PaymentReconciler{
		intake: intake, payments: payments, gateways: gateways,
		interval: interval, staleAfter: staleAfter, batchSize: batchSize, log: logger,
	}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListAwaitingOlderThan(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("payment-reconciler: list awaiting failed")
		return
	}
	for _, p := range stale {
		gw, ok := w.gateways[p.Provider]
		if !ok || p.ProviderPaymentID == nil {
			continue
		}
		ev, err := gw.FetchEvent(ctx, p)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) { // not-found means still pending
				w.log.Warn().Err(err).Str("ledger_id", p.ID).Str("provider", string(p.Provider)).
					Msg("payment-reconciler: fetch failed")
			}
			continue
		}
		if _, err := w.intake.Process(ctx, ev); err != nil {
			w.log.Warn().Err(err).Str("ledger_id", p.ID).Msg("payment-reconciler: process failed")
			continue
		}
		w.log.Info().Str("ledger_id", p.ID).Str("provider", string(p.Provider)).
			Msg("payment-reconciler: reconciled")
	}
}
