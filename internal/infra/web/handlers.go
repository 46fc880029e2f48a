package web

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/metrics"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// handleWebhook is the single entry point for all HTTP providers. The status
// code is the acknowledgment protocol: 2xx stops provider retries, 5xx keeps
// them coming, so transient failures map to 5xx and everything the service
// has decided about terminally maps to 2xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "provider")
	a, ok := s.adapters[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	defer func() { metrics.ObserveWebhook(name, time.Since(started).Seconds()) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhook(name, "malformed")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	req := provider.WebhookRequest{
		Header:   flattenHeader(r.Header),
		Body:     body,
		RemoteIP: remoteIP(r),
	}

	if err := a.Authenticate(req); err != nil {
		metrics.IncWebhook(name, "auth_failed")
		s.log.Warn().Str("provider", name).Str("remote_ip", req.RemoteIP).
			Msg("webhook rejected: authentication failed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ev, err := a.Parse(req)
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrEventIgnored):
		metrics.IncWebhook(name, "ignored")
		s.ack(w, a)
		return
	case errors.Is(err, provider.ErrMissingRequiredMetadata):
		// Metadata is unrecoverable; retrying would replay the same bytes.
		// Fail the ledger row when the partial event still references one,
		// then acknowledge.
		metrics.IncWebhook(name, "metadata_failed")
		if ev != nil && ev.LedgerID != "" {
			if merr := s.intake.MarkMetadataFailed(r.Context(), ev); merr != nil && !errors.Is(merr, domain.ErrNotFound) {
				s.log.Error().Err(merr).Str("provider", name).Str("ledger_id", ev.LedgerID).
					Msg("could not record metadata failure")
			}
		}
		s.log.Error().Str("provider", name).Msg("webhook metadata missing or invalid")
		s.ack(w, a)
		return
	default:
		metrics.IncWebhook(name, "malformed")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	out, err := s.intake.Process(r.Context(), ev)
	if err != nil {
		// Transient (lock, db, provider). No ack: the provider redelivers.
		metrics.IncWebhook(name, "retry")
		s.log.Error().Err(err).Str("provider", name).
			Str("provider_payment_id", ev.ProviderPaymentID).
			Msg("webhook processing failed, provider will retry")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	metrics.IncWebhook(name, "ok")
	switch {
	case out.Duplicate:
		metrics.IncDuplicate(name)
	case out.Canceled:
		metrics.IncPayment(name, "canceled")
	case out.UserMissing:
		metrics.IncPayment(name, "failed_user_missing")
	default:
		metrics.IncPayment(name, "succeeded")
		metrics.AddPaymentRevenue(out.Currency, out.Amount)
	}
	s.ack(w, a)
}

func (s *Server) ack(w http.ResponseWriter, a provider.Adapter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.AckBody())
}

func (s *Server) handleTransferApprove(w http.ResponseWriter, r *http.Request) {
	s.handleTransferDecision(w, r, true)
}

func (s *Server) handleTransferReject(w http.ResponseWriter, r *http.Request) {
	s.handleTransferDecision(w, r, false)
}

func (s *Server) handleTransferDecision(w http.ResponseWriter, r *http.Request, approve bool) {
	ledgerID := chi.URLParam(r, "ledgerID")
	adminID := adminIDFrom(r.Context())

	var (
		out interface{}
		err error
	)
	if approve {
		out, err = s.transfer.Approve(r.Context(), ledgerID, adminID)
	} else {
		out, err = s.transfer.Reject(r.Context(), ledgerID, adminID)
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Str("ledger_id", ledgerID).Msg("transfer decision failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

func remoteIP(r *http.Request) string {
	// middleware.RealIP already rewrote RemoteAddr from X-Forwarded-For when
	// present; strip the port if one remains.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
