package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
)

const yooKassaAPIBase = "https://api.yookassa.ru/v3"

// Published YooKassa webhook source ranges; used when the config does not
// override them.
var defaultYooKassaSubnets = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11/32",
	"77.75.156.35/32",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

// YooKassa handles bank-card payments. Inbound notifications carry no
// signature; authenticity comes from the documented source-IP ranges.
type YooKassa struct {
	cfg     config.YooKassaConfig
	subnets []*net.IPNet
	http    *http.Client
	log     *zerolog.Logger
}

var (
	_ Adapter                = (*YooKassa)(nil)
	_ adapter.PaymentGateway = (*YooKassa)(nil)
)

func NewYooKassa(cfg config.YooKassaConfig, timeout time.Duration, logger *zerolog.Logger) (*YooKassa, error) {
	cidrs := cfg.AllowedSubnets
	if len(cidrs) == 0 {
		cidrs = defaultYooKassaSubnets
	}
	subnets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("yookassa allowed subnet %q: %w", c, err)
		}
		subnets = append(subnets, n)
	}
	return &YooKassa{cfg: cfg, subnets: subnets, http: &http.Client{Timeout: timeout}, log: logger}, nil
}

func (y *YooKassa) Name() model.Provider { return model.ProviderYooKassa }

func (y *YooKassa) Authenticate(req WebhookRequest) error {
	ip := net.ParseIP(req.RemoteIP)
	if ip == nil {
		return ErrAuthenticationFailed
	}
	for _, n := range y.subnets {
		if n.Contains(ip) {
			return nil
		}
	}
	y.log.Warn().Str("remote_ip", req.RemoteIP).Msg("yookassa webhook from unlisted source")
	return ErrAuthenticationFailed
}

type yooKassaNotification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata      map[string]string `json:"metadata"`
		PaymentMethod struct {
			Saved bool `json:"saved"`
		} `json:"payment_method"`
	} `json:"object"`
}

func (y *YooKassa) Parse(req WebhookRequest) (*model.ProviderEvent, error) {
	var n yooKassaNotification
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, ErrMalformedPayload
	}
	if n.Object.ID == "" {
		return nil, ErrMalformedPayload
	}

	var outcome model.EventOutcome
	switch n.Event {
	case "payment.succeeded":
		outcome = model.OutcomeSucceeded
	case "payment.canceled":
		outcome = model.OutcomeCanceled
	case "payment.waiting_for_capture", "refund.succeeded":
		return nil, ErrEventIgnored
	default:
		return nil, ErrEventIgnored
	}

	amount, err := parseMinorUnits(n.Object.Amount.Value)
	if err != nil {
		return nil, ErrMalformedPayload
	}

	ev := &model.ProviderEvent{
		Provider:          model.ProviderYooKassa,
		ProviderPaymentID: n.Object.ID,
		LedgerID:          n.Object.Metadata["payment_db_id"],
		Outcome:           outcome,
		Amount:            amount,
		Currency:          n.Object.Amount.Currency,
		RawPayload:        req.Body,
	}

	meta, err := parseYooKassaMeta(n.Object.Metadata)
	if err != nil {
		// Keep the partial event: the handler still fails the ledger row it
		// references instead of leaving it awaiting forever.
		return ev, ErrMissingRequiredMetadata
	}
	ev.Meta = meta
	return ev, nil
}

// parseYooKassaMeta validates the round-tripped metadata. Renewal charges are
// provider-initiated and identified by auto_renew_for_subscription_id.
func parseYooKassaMeta(m map[string]string) (model.EventMeta, error) {
	var meta model.EventMeta
	userID, err := strconv.ParseInt(m["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return meta, fmt.Errorf("user_id: %w", domain.ErrInvalidArgument)
	}
	months, err := strconv.Atoi(m["subscription_months"])
	if err != nil || months <= 0 {
		return meta, fmt.Errorf("subscription_months: %w", domain.ErrInvalidArgument)
	}
	meta.UserID = userID
	meta.Months = months
	if v := m["promo_code_id"]; v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return meta, fmt.Errorf("promo_code_id: %w", domain.ErrInvalidArgument)
		}
		meta.PromoCodeID = &id
	}
	if m["auto_renew_for_subscription_id"] != "" {
		meta.AutoRenew = true
	}
	return meta, nil
}

func (y *YooKassa) AckBody() []byte { return []byte(`{"status":"ok"}`) }

type yooKassaCreateRequest struct {
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Capture      bool `json:"capture"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Description       string            `json:"description"`
	Metadata          map[string]string `json:"metadata"`
	SavePaymentMethod bool              `json:"save_payment_method,omitempty"`
}

type yooKassaPayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

func (y *YooKassa) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (string, string, error) {
	var body yooKassaCreateRequest
	body.Amount.Value = minorToDecimal(req.Amount)
	body.Amount.Currency = req.Currency
	body.Capture = true
	body.Confirmation.Type = "redirect"
	body.Confirmation.ReturnURL = req.ReturnURL
	if body.Confirmation.ReturnURL == "" {
		body.Confirmation.ReturnURL = y.cfg.ReturnURL
	}
	body.Description = req.Description
	body.SavePaymentMethod = req.SaveMethod
	body.Metadata = map[string]string{
		"user_id":             strconv.FormatInt(req.UserID, 10),
		"subscription_months": strconv.Itoa(req.Months),
		"payment_db_id":       req.LedgerID,
	}
	if req.PromoCodeID != nil {
		body.Metadata["promo_code_id"] = strconv.FormatInt(*req.PromoCodeID, 10)
	}

	var p yooKassaPayment
	if err := y.call(ctx, http.MethodPost, "/payments", req.LedgerID, body, &p); err != nil {
		return "", "", err
	}
	if p.ID == "" || p.Confirmation.ConfirmationURL == "" {
		return "", "", fmt.Errorf("yookassa: incomplete create response: %w", domain.ErrOperationFailed)
	}
	return p.ID, p.Confirmation.ConfirmationURL, nil
}

func (y *YooKassa) FetchEvent(ctx context.Context, pay *model.Payment) (*model.ProviderEvent, error) {
	if pay.ProviderPaymentID == nil {
		return nil, domain.ErrNotFound
	}
	var p yooKassaPayment
	if err := y.call(ctx, http.MethodGet, "/payments/"+*pay.ProviderPaymentID, "", nil, &p); err != nil {
		return nil, err
	}

	var outcome model.EventOutcome
	switch p.Status {
	case "succeeded":
		outcome = model.OutcomeSucceeded
	case "canceled":
		outcome = model.OutcomeCanceled
	default:
		return nil, domain.ErrNotFound // still pending at the provider
	}
	amount, err := parseMinorUnits(p.Amount.Value)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	ev := &model.ProviderEvent{
		Provider:          model.ProviderYooKassa,
		ProviderPaymentID: p.ID,
		LedgerID:          p.Metadata["payment_db_id"],
		Outcome:           outcome,
		Amount:            amount,
		Currency:          p.Amount.Currency,
	}
	if meta, err := parseYooKassaMeta(p.Metadata); err == nil {
		ev.Meta = meta
	}
	return ev, nil
}

// call does one authenticated API request with a single retry on transport
// errors. The Idempotence-Key makes the retry safe for POSTs.
func (y *YooKassa) call(ctx context.Context, method, path, idemKey string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, yooKassaAPIBase+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.SetBasicAuth(y.cfg.ShopID, y.cfg.SecretKey)
		req.Header.Set("Content-Type", "application/json")
		if method == http.MethodPost {
			req.Header.Set("Idempotence-Key", idemKey)
		}

		resp, err := y.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("yookassa %s %s: status %d: %s", method, path, resp.StatusCode, b)
		}
		return json.Unmarshal(b, out)
	}
	return fmt.Errorf("yookassa %s %s: %w", method, path, lastErr)
}

// minorToDecimal renders minor units as the "123.45" decimal string provider
// APIs expect.
func minorToDecimal(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}
