package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
)

// StarsGateway creates Telegram Stars invoices through the bot. There is no
// provider payment id at creation time; Telegram assigns the charge id only
// when the user pays, so CreatePayment returns an empty one and the ledger
// reference rides in the invoice payload instead.
type StarsGateway struct {
	bot *Bot
}

var _ adapter.PaymentGateway = (*StarsGateway)(nil)

func NewStarsGateway(bot *Bot) *StarsGateway {
	return &StarsGateway{bot: bot}
}

func (g *StarsGateway) Name() model.Provider { return model.ProviderStars }

func (g *StarsGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (string, string, error) {
	prices, err := json.Marshal([]tgbotapi.LabeledPrice{
		{Label: req.Description, Amount: int(req.Amount)},
	})
	if err != nil {
		return "", "", err
	}

	params := tgbotapi.Params{
		"title":       "VPN Subscription",
		"description": req.Description,
		"payload":     provider.StarsInvoicePayload(req.LedgerID, req.Months),
		"currency":    "XTR",
		"prices":      string(prices),
	}
	resp, err := g.bot.bot.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return "", "", fmt.Errorf("createInvoiceLink: %w", err)
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil || link == "" {
		return "", "", fmt.Errorf("createInvoiceLink: bad result: %w", domain.ErrOperationFailed)
	}
	return "", link, nil
}

// FetchEvent: the Bot API offers no invoice polling; reconciliation for Stars
// relies on the update stream alone.
func (g *StarsGateway) FetchEvent(ctx context.Context, p *model.Payment) (*model.ProviderEvent, error) {
	return nil, domain.ErrNotFound
}
