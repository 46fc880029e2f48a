//go:build !integration

package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

func newTestCryptoPay(t *testing.T) *CryptoPay {
	t.Helper()
	logger := zerolog.Nop()
	return NewCryptoPay(config.CryptoPayConfig{Token: "test-token", Asset: "USDT"}, 5*time.Second, &logger)
}

// signCryptoPay reproduces the documented scheme: HMAC-SHA256 over the raw
// body keyed by SHA256 of the API token, hex-encoded.
func signCryptoPay(token string, body []byte) string {
	key := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCryptoPayAuthenticate(t *testing.T) {
	c := newTestCryptoPay(t)
	body := []byte(`{"update_type":"invoice_paid"}`)

	req := WebhookRequest{
		Header: map[string]string{cryptoPaySignatureHeader: signCryptoPay("test-token", body)},
		Body:   body,
	}
	if err := c.Authenticate(req); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	req.Header[cryptoPaySignatureHeader] = signCryptoPay("other-token", body)
	if err := c.Authenticate(req); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("wrong key: err = %v, want ErrAuthenticationFailed", err)
	}

	req.Header[cryptoPaySignatureHeader] = "zz-not-hex"
	if err := c.Authenticate(req); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("non-hex signature: err = %v, want ErrAuthenticationFailed", err)
	}

	req.Header = map[string]string{}
	if err := c.Authenticate(req); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("missing signature: err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestCryptoPayParseInvoicePaid(t *testing.T) {
	c := newTestCryptoPay(t)
	body := []byte(`{
		"update_type": "invoice_paid",
		"payload": {
			"invoice_id": 555,
			"status": "paid",
			"amount": "12.50",
			"asset": "USDT",
			"payload": "{\"user_id\":42,\"months\":3,\"payment_db_id\":\"led-5\",\"promo_code_id\":9}"
		}
	}`)

	ev, err := c.Parse(WebhookRequest{Body: body})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.ProviderPaymentID != "555" || ev.LedgerID != "led-5" {
		t.Fatalf("ids: ppid=%s ledger=%s", ev.ProviderPaymentID, ev.LedgerID)
	}
	if ev.Outcome != model.OutcomeSucceeded || ev.Amount != 1250 || ev.Currency != "USDT" {
		t.Fatalf("event: %+v", ev)
	}
	if ev.Meta.UserID != 42 || ev.Meta.Months != 3 {
		t.Fatalf("meta: %+v", ev.Meta)
	}
	if ev.Meta.PromoCodeID == nil || *ev.Meta.PromoCodeID != 9 {
		t.Fatal("promo id lost in the payload round-trip")
	}
}

func TestCryptoPayParseIgnoresOtherUpdates(t *testing.T) {
	c := newTestCryptoPay(t)
	body := []byte(`{"update_type":"invoice_expired","payload":{"invoice_id":1}}`)
	if _, err := c.Parse(WebhookRequest{Body: body}); !errors.Is(err, ErrEventIgnored) {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestCryptoPayParseBadPayloadKeepsCharge(t *testing.T) {
	c := newTestCryptoPay(t)
	body := []byte(`{
		"update_type": "invoice_paid",
		"payload": {"invoice_id": 556, "amount": "5.00", "asset": "TON", "payload": "not json"}
	}`)
	ev, err := c.Parse(WebhookRequest{Body: body})
	if !errors.Is(err, ErrMissingRequiredMetadata) {
		t.Fatalf("err = %v, want ErrMissingRequiredMetadata", err)
	}
	if ev == nil || ev.ProviderPaymentID != "556" {
		t.Fatal("the partial event must still carry the invoice id")
	}

	if _, err := c.Parse(WebhookRequest{Body: []byte(`{"update_type":"invoice_paid","payload":{}}`)}); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("zero invoice id: err = %v, want ErrMalformedPayload", err)
	}
}
