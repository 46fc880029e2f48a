package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

const tributeSignatureHeader = "trbt-signature"

// Tribute handles payments made on the Tribute subscription platform. The flow
// is entirely provider-initiated: there is no local purchase pre-image, ledger
// rows are created lazily from the webhook. Signatures are HMAC-SHA256 over
// the raw body, hex-encoded, keyed by the integration API key.
type Tribute struct {
	cfg config.TributeConfig
	log *zerolog.Logger
}

var _ Adapter = (*Tribute)(nil)

func NewTribute(cfg config.TributeConfig, logger *zerolog.Logger) *Tribute {
	return &Tribute{cfg: cfg, log: logger}
}

func (t *Tribute) Name() model.Provider { return model.ProviderTribute }

func (t *Tribute) Authenticate(req WebhookRequest) error {
	sig, err := hex.DecodeString(req.header(tributeSignatureHeader))
	if err != nil || len(sig) == 0 {
		return ErrAuthenticationFailed
	}
	mac := hmac.New(sha256.New, []byte(t.cfg.APIKey))
	mac.Write(req.Body)
	if !hmac.Equal(mac.Sum(nil), sig) {
		t.log.Warn().Str("remote_ip", req.RemoteIP).Msg("tribute webhook signature mismatch")
		return ErrAuthenticationFailed
	}
	return nil
}

type tributeEvent struct {
	Name    string `json:"name"`
	Payload struct {
		SubscriptionID int64  `json:"subscription_id"`
		PeriodID       int64  `json:"period_id"`
		Period         string `json:"period"`
		TelegramUserID int64  `json:"telegram_user_id"`
		Price          int64  `json:"price"` // minor units
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
	} `json:"payload"`
}

// tributePeriodMonths maps the platform's billing period names to months.
var tributePeriodMonths = map[string]int{
	"monthly":    1,
	"quarterly":  3,
	"3-month":    3,
	"halfyearly": 6,
	"6-month":    6,
	"yearly":     12,
	"annual":     12,
}

func (t *Tribute) Parse(req WebhookRequest) (*model.ProviderEvent, error) {
	var e tributeEvent
	if err := json.Unmarshal(req.Body, &e); err != nil {
		return nil, ErrMalformedPayload
	}

	switch e.Name {
	case "new_subscription":
	case "cancelled_subscription":
		if e.Payload.TelegramUserID <= 0 {
			return nil, ErrMissingRequiredMetadata
		}
		return &model.ProviderEvent{
			Provider:   model.ProviderTribute,
			Outcome:    model.OutcomeSubscriptionCanceled,
			Meta:       model.EventMeta{UserID: e.Payload.TelegramUserID},
			RawPayload: req.Body,
		}, nil
	default:
		return nil, ErrEventIgnored
	}

	amount := e.Payload.Amount
	if amount == 0 {
		amount = e.Payload.Price
	}
	ev := &model.ProviderEvent{
		Provider:          model.ProviderTribute,
		ProviderPaymentID: tributeEventID(e, req.Body),
		Outcome:           model.OutcomeSucceeded,
		Amount:            amount,
		Currency:          e.Payload.Currency,
		RawPayload:        req.Body,
	}

	months, ok := tributePeriodMonths[e.Payload.Period]
	if e.Payload.TelegramUserID <= 0 || !ok {
		return ev, ErrMissingRequiredMetadata
	}
	ev.Meta = model.EventMeta{
		UserID:    e.Payload.TelegramUserID,
		Months:    months,
		AutoRenew: true, // the platform renews on its own schedule
	}
	return ev, nil
}

// tributeEventID derives a stable dedup key. Renewal events reuse the
// subscription id plus the charged period; payloads without one fall back to
// a digest of the raw body so byte-identical redeliveries still dedupe.
func tributeEventID(e tributeEvent, raw []byte) string {
	if e.Payload.SubscriptionID != 0 && e.Payload.PeriodID != 0 {
		return hexID("trb", e.Payload.SubscriptionID, e.Payload.PeriodID)
	}
	sum := sha256.Sum256(raw)
	return "trb-" + hex.EncodeToString(sum[:8])
}

func hexID(prefix string, a, b int64) string {
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(a >> (56 - 8*i))
		buf[8+i] = byte(b >> (56 - 8*i))
	}
	sum := sha256.Sum256(buf[:])
	return prefix + "-" + hex.EncodeToString(sum[:8])
}

func (t *Tribute) AckBody() []byte { return []byte(`{"status":"ok"}`) }
