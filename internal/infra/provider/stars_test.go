//go:build !integration

package provider

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

func TestStarsPayloadRoundTrip(t *testing.T) {
	payload := StarsInvoicePayload("led-7", 6)

	ev, err := EventFromStarsPayment(42, &tgbotapi.SuccessfulPayment{
		Currency:                "XTR",
		TotalAmount:             450,
		InvoicePayload:          payload,
		TelegramPaymentChargeID: "stars-charge-1",
	})
	if err != nil {
		t.Fatalf("EventFromStarsPayment: %v", err)
	}
	if ev.Provider != model.ProviderStars || ev.Outcome != model.OutcomeSucceeded {
		t.Fatalf("event: %+v", ev)
	}
	if ev.LedgerID != "led-7" || ev.Meta.Months != 6 || ev.Meta.UserID != 42 {
		t.Fatalf("round-trip lost data: %+v", ev)
	}
	if ev.ProviderPaymentID != "stars-charge-1" || ev.Amount != 450 || ev.Currency != "XTR" {
		t.Fatalf("charge fields: %+v", ev)
	}
}

func TestStarsBadPayloadKeepsCharge(t *testing.T) {
	cases := []string{"no-separator", "led-7:zero", "led-7:0", ":3"}
	for _, payload := range cases {
		ev, err := EventFromStarsPayment(42, &tgbotapi.SuccessfulPayment{
			Currency:                "XTR",
			TotalAmount:             450,
			InvoicePayload:          payload,
			TelegramPaymentChargeID: "stars-charge-2",
		})
		if !errors.Is(err, ErrMissingRequiredMetadata) {
			t.Errorf("payload %q: err = %v, want ErrMissingRequiredMetadata", payload, err)
			continue
		}
		if ev == nil || ev.ProviderPaymentID != "stars-charge-2" {
			t.Errorf("payload %q: partial event must keep the charge id", payload)
		}
	}
}
