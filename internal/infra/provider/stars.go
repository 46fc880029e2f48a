package provider

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// Telegram Stars payments never arrive over HTTP: the bot's update stream
// delivers a SuccessfulPayment after Telegram has already taken the stars.
// Authenticity is the bot connection itself, so there is no Adapter here,
// only the translation to the canonical event.

// StarsInvoicePayload encodes what a Stars invoice needs to round-trip:
// the ledger id and the purchased months.
func StarsInvoicePayload(ledgerID string, months int) string {
	return ledgerID + ":" + strconv.Itoa(months)
}

// EventFromStarsPayment translates a successful Stars charge. A payment with
// an unparseable payload still produces an event carrying the charge id, so
// the caller can record the terminal metadata failure.
func EventFromStarsPayment(userID int64, sp *tgbotapi.SuccessfulPayment) (*model.ProviderEvent, error) {
	ev := &model.ProviderEvent{
		Provider:          model.ProviderStars,
		ProviderPaymentID: sp.TelegramPaymentChargeID,
		Outcome:           model.OutcomeSucceeded,
		Amount:            int64(sp.TotalAmount),
		Currency:          sp.Currency,
	}

	ledgerID, monthsStr, ok := strings.Cut(sp.InvoicePayload, ":")
	if !ok {
		return ev, ErrMissingRequiredMetadata
	}
	months, err := strconv.Atoi(monthsStr)
	if err != nil || months <= 0 || ledgerID == "" {
		ev.LedgerID = ledgerID
		return ev, ErrMissingRequiredMetadata
	}
	ev.LedgerID = ledgerID
	ev.Meta = model.EventMeta{UserID: userID, Months: months}
	return ev, nil
}
