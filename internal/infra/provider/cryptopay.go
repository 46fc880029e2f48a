package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
)

const (
	cryptoPayAPIBase         = "https://pay.crypt.bot/api"
	cryptoPaySignatureHeader = "crypto-pay-api-signature"
)

// CryptoPay handles crypto payments through the @CryptoBot API. Webhooks are
// signed with HMAC-SHA256 over the raw body, keyed by SHA256 of the API token.
type CryptoPay struct {
	cfg    config.CryptoPayConfig
	sigKey []byte
	http   *http.Client
	log    *zerolog.Logger
}

var (
	_ Adapter                = (*CryptoPay)(nil)
	_ adapter.PaymentGateway = (*CryptoPay)(nil)
)

func NewCryptoPay(cfg config.CryptoPayConfig, timeout time.Duration, logger *zerolog.Logger) *CryptoPay {
	key := sha256.Sum256([]byte(cfg.Token))
	return &CryptoPay{cfg: cfg, sigKey: key[:], http: &http.Client{Timeout: timeout}, log: logger}
}

func (c *CryptoPay) Name() model.Provider { return model.ProviderCryptoPay }

func (c *CryptoPay) Authenticate(req WebhookRequest) error {
	sig, err := hex.DecodeString(req.header(cryptoPaySignatureHeader))
	if err != nil || len(sig) == 0 {
		return ErrAuthenticationFailed
	}
	mac := hmac.New(sha256.New, c.sigKey)
	mac.Write(req.Body)
	if !hmac.Equal(mac.Sum(nil), sig) {
		c.log.Warn().Str("remote_ip", req.RemoteIP).Msg("cryptopay webhook signature mismatch")
		return ErrAuthenticationFailed
	}
	return nil
}

// invoicePayload is the custom payload attached at invoice creation and echoed
// back verbatim in the webhook.
type invoicePayload struct {
	UserID      int64  `json:"user_id"`
	Months      int    `json:"months"`
	PaymentDBID string `json:"payment_db_id"`
	PromoCodeID *int64 `json:"promo_code_id,omitempty"`
}

type cryptoPayInvoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"`
	Payload   string `json:"payload"`

	BotInvoiceURL string `json:"bot_invoice_url"`
}

type cryptoPayUpdate struct {
	UpdateType string           `json:"update_type"`
	Payload    cryptoPayInvoice `json:"payload"`
}

func (c *CryptoPay) Parse(req WebhookRequest) (*model.ProviderEvent, error) {
	var upd cryptoPayUpdate
	if err := json.Unmarshal(req.Body, &upd); err != nil {
		return nil, ErrMalformedPayload
	}
	if upd.UpdateType != "invoice_paid" {
		return nil, ErrEventIgnored
	}
	if upd.Payload.InvoiceID == 0 {
		return nil, ErrMalformedPayload
	}

	amount, err := parseMinorUnits(upd.Payload.Amount)
	if err != nil {
		return nil, ErrMalformedPayload
	}
	ev := &model.ProviderEvent{
		Provider:          model.ProviderCryptoPay,
		ProviderPaymentID: strconv.FormatInt(upd.Payload.InvoiceID, 10),
		Outcome:           model.OutcomeSucceeded,
		Amount:            amount,
		Currency:          upd.Payload.Asset,
		RawPayload:        req.Body,
	}

	var pl invoicePayload
	if err := json.Unmarshal([]byte(upd.Payload.Payload), &pl); err != nil || pl.UserID <= 0 || pl.Months <= 0 {
		return ev, ErrMissingRequiredMetadata
	}
	ev.LedgerID = pl.PaymentDBID
	ev.Meta = model.EventMeta{UserID: pl.UserID, Months: pl.Months, PromoCodeID: pl.PromoCodeID}
	return ev, nil
}

func (c *CryptoPay) AckBody() []byte { return []byte(`{"ok":true}`) }

func (c *CryptoPay) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (string, string, error) {
	pl, err := json.Marshal(invoicePayload{
		UserID:      req.UserID,
		Months:      req.Months,
		PaymentDBID: req.LedgerID,
		PromoCodeID: req.PromoCodeID,
	})
	if err != nil {
		return "", "", err
	}

	params := url.Values{}
	params.Set("asset", c.cfg.Asset)
	params.Set("amount", minorToDecimal(req.Amount))
	params.Set("description", req.Description)
	params.Set("payload", string(pl))

	var inv cryptoPayInvoice
	if err := c.call(ctx, "createInvoice", params, &inv); err != nil {
		return "", "", err
	}
	if inv.InvoiceID == 0 || inv.BotInvoiceURL == "" {
		return "", "", fmt.Errorf("cryptopay: incomplete invoice response: %w", domain.ErrOperationFailed)
	}
	return strconv.FormatInt(inv.InvoiceID, 10), inv.BotInvoiceURL, nil
}

func (c *CryptoPay) FetchEvent(ctx context.Context, pay *model.Payment) (*model.ProviderEvent, error) {
	if pay.ProviderPaymentID == nil {
		return nil, domain.ErrNotFound
	}
	params := url.Values{}
	params.Set("invoice_ids", *pay.ProviderPaymentID)

	var result struct {
		Items []cryptoPayInvoice `json:"items"`
	}
	if err := c.call(ctx, "getInvoices", params, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	inv := result.Items[0]

	var outcome model.EventOutcome
	switch inv.Status {
	case "paid":
		outcome = model.OutcomeSucceeded
	case "expired":
		outcome = model.OutcomeCanceled
	default:
		return nil, domain.ErrNotFound // still active
	}
	amount, err := parseMinorUnits(inv.Amount)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	ev := &model.ProviderEvent{
		Provider:          model.ProviderCryptoPay,
		ProviderPaymentID: strconv.FormatInt(inv.InvoiceID, 10),
		LedgerID:          pay.ID,
		Outcome:           outcome,
		Amount:            amount,
		Currency:          inv.Asset,
		Meta:              model.EventMeta{UserID: pay.UserID, Months: pay.Months},
	}
	return ev, nil
}

func (c *CryptoPay) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cryptoPayAPIBase+"/"+method+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Crypto-Pay-API-Token", c.cfg.Token)

		resp, err := c.http.Do(req)
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

		var envelope struct {
			OK     bool            `json:"ok"`
			Result json.RawMessage `json:"result"`
			Error  json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(b, &envelope); err != nil {
			return fmt.Errorf("cryptopay %s: bad response: %w", method, err)
		}
		if !envelope.OK {
			return fmt.Errorf("cryptopay %s: api error: %s", method, envelope.Error)
		}
		return json.Unmarshal(envelope.Result, out)
	}
	return fmt.Errorf("cryptopay %s: %w", method, lastErr)
}
