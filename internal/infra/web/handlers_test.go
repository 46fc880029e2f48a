//go:build !integration

package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/usecase"
)

type stubIntake struct {
	processFn func(ctx context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error)
	metaCalls []*model.ProviderEvent
}

func (s *stubIntake) Process(ctx context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error) {
	if s.processFn == nil {
		return &model.ActivationOutcome{LedgerID: ev.LedgerID, Amount: ev.Amount, Currency: ev.Currency}, nil
	}
	return s.processFn(ctx, ev)
}

func (s *stubIntake) MarkMetadataFailed(ctx context.Context, ev *model.ProviderEvent) error {
	s.metaCalls = append(s.metaCalls, ev)
	return nil
}

type stubAdapter struct {
	name    model.Provider
	authErr error
	parseFn func(req provider.WebhookRequest) (*model.ProviderEvent, error)
}

func (s *stubAdapter) Name() model.Provider { return s.name }

func (s *stubAdapter) Authenticate(provider.WebhookRequest) error { return s.authErr }

func (s *stubAdapter) Parse(req provider.WebhookRequest) (*model.ProviderEvent, error) {
	return s.parseFn(req)
}

func (s *stubAdapter) AckBody() []byte { return []byte(`{"status":"ok"}`) }

func okEvent() *model.ProviderEvent {
	return &model.ProviderEvent{
		Provider:          model.ProviderYooKassa,
		ProviderPaymentID: "yk-1",
		LedgerID:          "led-1",
		Outcome:           model.OutcomeSucceeded,
		Amount:            150000,
		Currency:          "RUB",
		Meta:              model.EventMeta{UserID: 42, Months: 1},
	}
}

func newWebhookServer(intake *stubIntake, a provider.Adapter) http.Handler {
	logger := zerolog.Nop()
	s := NewServer(0, intake, nil, []provider.Adapter{a}, nil, &logger)
	return s.routes()
}

func postWebhook(t *testing.T, h http.Handler, slug, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+slug, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookUnknownProvider(t *testing.T) {
	h := newWebhookServer(&stubIntake{}, &stubAdapter{name: model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) { return okEvent(), nil }})
	if rec := postWebhook(t, h, "paypal", "{}"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWebhookAuthFailure(t *testing.T) {
	h := newWebhookServer(&stubIntake{}, &stubAdapter{
		name:    model.ProviderYooKassa,
		authErr: provider.ErrAuthenticationFailed,
	})
	if rec := postWebhook(t, h, "yookassa", "{}"); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	h := newWebhookServer(&stubIntake{}, &stubAdapter{
		name: model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) {
			return nil, provider.ErrMalformedPayload
		},
	})
	if rec := postWebhook(t, h, "yookassa", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookIgnoredEventIsAcked(t *testing.T) {
	intake := &stubIntake{
		processFn: func(context.Context, *model.ProviderEvent) (*model.ActivationOutcome, error) {
			t.Fatal("ignored events must not reach the intake pipeline")
			return nil, nil
		},
	}
	h := newWebhookServer(intake, &stubAdapter{
		name: model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) {
			return nil, provider.ErrEventIgnored
		},
	})
	rec := postWebhook(t, h, "yookassa", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("ack body = %q", rec.Body.String())
	}
}

func TestWebhookMetadataFailureAckedAndRecorded(t *testing.T) {
	intake := &stubIntake{}
	h := newWebhookServer(intake, &stubAdapter{
		name: model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) {
			return &model.ProviderEvent{Provider: model.ProviderYooKassa, LedgerID: "led-5"},
				provider.ErrMissingRequiredMetadata
		},
	})
	rec := postWebhook(t, h, "yookassa", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: retrying would replay the same bytes", rec.Code)
	}
	if len(intake.metaCalls) != 1 || intake.metaCalls[0].LedgerID != "led-5" {
		t.Fatal("the referenced ledger row must be failed terminally")
	}
}

func TestWebhookTransientFailureGets500(t *testing.T) {
	intake := &stubIntake{
		processFn: func(context.Context, *model.ProviderEvent) (*model.ActivationOutcome, error) {
			return nil, domain.ErrLockUnavailable
		},
	}
	h := newWebhookServer(intake, &stubAdapter{
		name:    model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) { return okEvent(), nil },
	})
	if rec := postWebhook(t, h, "yookassa", "{}"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider redelivers", rec.Code)
	}
}

func TestWebhookSuccessAcked(t *testing.T) {
	var processed *model.ProviderEvent
	intake := &stubIntake{
		processFn: func(_ context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error) {
			processed = ev
			return &model.ActivationOutcome{LedgerID: ev.LedgerID, Amount: ev.Amount, Currency: ev.Currency}, nil
		},
	}
	h := newWebhookServer(intake, &stubAdapter{
		name:    model.ProviderYooKassa,
		parseFn: func(provider.WebhookRequest) (*model.ProviderEvent, error) { return okEvent(), nil },
	})
	rec := postWebhook(t, h, "yookassa", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if processed == nil || processed.ProviderPaymentID != "yk-1" {
		t.Fatal("parsed event did not reach the intake pipeline")
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("ack body = %q", rec.Body.String())
	}
}

// ===== transfer-review API =====

// fixedPaymentRepo serves one in-memory ledger row, enough to drive the
// transfer flow end to end through the HTTP surface.
type fixedPaymentRepo struct {
	p *model.Payment
}

func (r *fixedPaymentRepo) Save(context.Context, repository.Tx, *model.Payment) error { return nil }

func (r *fixedPaymentRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	if r.p == nil || r.p.ID != id {
		return nil, domain.ErrNotFound
	}
	cp := *r.p
	return &cp, nil
}

func (r *fixedPaymentRepo) FindByProviderPaymentID(context.Context, repository.Tx, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (r *fixedPaymentRepo) GetOrCreateByProviderPaymentID(_ context.Context, _ repository.Tx, p *model.Payment) (*model.Payment, bool, error) {
	return p, true, nil
}

func (r *fixedPaymentRepo) UpdateStatusIfNotTerminal(context.Context, repository.Tx, string, model.PaymentStatus, *string) (bool, error) {
	return true, nil
}

func (r *fixedPaymentRepo) UpdateStatus(context.Context, repository.Tx, string, model.PaymentStatus, *string) error {
	return nil
}

func (r *fixedPaymentRepo) ListAwaitingOlderThan(context.Context, repository.Tx, time.Time, int) ([]*model.Payment, error) {
	return nil, nil
}

func newTransferServer(t *testing.T, intake *stubIntake, auth *AuthManager) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	ppid := "manual:led-man"
	repo := &fixedPaymentRepo{p: &model.Payment{
		ID: "led-man", UserID: 42, Amount: 50000, Currency: "RUB",
		Provider: model.ProviderManual, ProviderPaymentID: &ppid,
		Status: model.PaymentStatusAwaitingProvider, Months: 1,
	}}
	transfer := usecase.NewTransferUseCase(repo, intake, &logger)
	s := NewServer(0, intake, transfer, nil, auth, &logger)
	return s.routes()
}

func TestTransferAPIRequiresAdminToken(t *testing.T) {
	auth := NewAuthManager("jwt-secret", time.Minute)
	h := newTransferServer(t, &stubIntake{}, auth)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/led-man/approve", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	forged, err := NewAuthManager("other-secret", time.Minute).Mint(7)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/transfers/led-man/approve", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status = %d, want 401", rec.Code)
	}
}

func TestTransferAPIDisabledWithoutAuthManager(t *testing.T) {
	h := newTransferServer(t, &stubIntake{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/led-man/approve", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when the admin surface is not configured", rec.Code)
	}
}

func TestTransferAPIApprove(t *testing.T) {
	var processed *model.ProviderEvent
	intake := &stubIntake{
		processFn: func(_ context.Context, ev *model.ProviderEvent) (*model.ActivationOutcome, error) {
			processed = ev
			return &model.ActivationOutcome{LedgerID: ev.LedgerID, UserID: ev.Meta.UserID}, nil
		},
	}
	auth := NewAuthManager("jwt-secret", time.Minute)
	h := newTransferServer(t, intake, auth)

	tok, err := auth.Mint(7)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/led-man/approve", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if processed == nil || processed.Outcome != model.OutcomeSucceeded || processed.LedgerID != "led-man" {
		t.Fatalf("settlement event: %+v", processed)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/transfers/missing/reject", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown ledger id: status = %d, want 404", rec.Code)
	}
}
