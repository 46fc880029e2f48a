package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/usecase"
)

// Bot is the Telegram side of the shop: it registers users, carries the
// Telegram Stars payment flow (pre-checkout and successful-payment updates)
// and delivers outcome notifications.
type Bot struct {
	bot      *tgbotapi.BotAPI
	cfg      *config.Config
	users    repository.UserRepository
	intake   usecase.PaymentIntakeUseCase
	purchase *usecase.PurchaseUseCase
	transfer *usecase.TransferUseCase
	admins   map[int64]struct{}
	log      *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

var _ adapter.Notifier = (*Bot)(nil)

func NewBot(
	cfg *config.Config,
	users repository.UserRepository,
	intake usecase.PaymentIntakeUseCase,
	purchase *usecase.PurchaseUseCase,
	transfer *usecase.TransferUseCase,
	logger *zerolog.Logger,
) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	workers := cfg.Telegram.Workers
	if workers <= 0 {
		workers = 5
	}
	admins := make(map[int64]struct{}, len(cfg.Telegram.AdminIDs))
	for _, id := range cfg.Telegram.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		bot: api, cfg: cfg, users: users,
		intake: intake, purchase: purchase, transfer: transfer,
		admins: admins, log: logger, updateWorkers: workers,
	}, nil
}

// StartPolling begins polling Telegram for updates concurrently.
// It runs until ctx is canceled.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, update); err != nil {
						b.log.Error().Err(err).Int("worker", workerID).Msg("update handling failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	b.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (b *Bot) StopPolling() {
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.PreCheckoutQuery != nil:
		return b.handlePreCheckout(update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		return b.handleStarsPayment(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		return b.handleCommand(ctx, update.Message)
	}
	return nil
}

// handlePreCheckout approves the charge. Telegram gives 10 seconds to answer;
// the real settlement checks happen on the successful-payment update.
func (b *Bot) handlePreCheckout(q *tgbotapi.PreCheckoutQuery) error {
	_, err := b.bot.Request(tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: q.ID,
		OK:                 true,
	})
	return err
}

// handleStarsPayment is the Stars equivalent of a provider webhook: Telegram
// has already taken the stars, the update is the settlement notification.
func (b *Bot) handleStarsPayment(ctx context.Context, msg *tgbotapi.Message) error {
	ev, err := provider.EventFromStarsPayment(msg.From.ID, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).
			Str("charge_id", msg.SuccessfulPayment.TelegramPaymentChargeID).
			Msg("stars payment with bad payload")
		if ev != nil && ev.LedgerID != "" {
			if merr := b.intake.MarkMetadataFailed(ctx, ev); merr != nil {
				b.log.Error().Err(merr).Str("ledger_id", ev.LedgerID).Msg("could not record metadata failure")
			}
		}
		return nil
	}
	_, err = b.intake.Process(ctx, ev)
	return err
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.registerUser(ctx, msg)
	case "plans":
		return b.replyPlans(msg.Chat.ID)
	case "buy":
		return b.handleBuy(ctx, msg)
	case "approve", "reject":
		return b.handleTransferDecision(ctx, msg)
	}
	return nil
}

// handleTransferDecision lets admins settle phone transfers from the chat,
// mirroring the web API.
func (b *Bot) handleTransferDecision(ctx context.Context, msg *tgbotapi.Message) error {
	if _, ok := b.admins[msg.From.ID]; !ok {
		return nil
	}
	ledgerID := strings.TrimSpace(msg.CommandArguments())
	if ledgerID == "" {
		return b.reply(msg.Chat.ID, "Usage: /"+msg.Command()+" <request-id>")
	}
	var err error
	if msg.Command() == "approve" {
		_, err = b.transfer.Approve(ctx, ledgerID, msg.From.ID)
	} else {
		_, err = b.transfer.Reject(ctx, ledgerID, msg.From.ID)
	}
	if err != nil {
		b.log.Error().Err(err).Str("ledger_id", ledgerID).Msg("transfer decision via bot failed")
		return b.reply(msg.Chat.ID, "Could not settle request "+ledgerID+": "+err.Error())
	}
	return b.reply(msg.Chat.ID, "Request "+ledgerID+" settled.")
}

func (b *Bot) replyPlans(chatID int64) error {
	if len(b.cfg.Plans) == 0 {
		return b.reply(chatID, "No subscription plans are configured yet.")
	}
	var sb strings.Builder
	sb.WriteString("Available plans:\n")
	for _, p := range b.cfg.Plans {
		fmt.Fprintf(&sb, "• %d month(s) — %d.%02d %s", p.Months, p.Amount/100, p.Amount%100, p.Currency)
		if p.StarsAmount > 0 {
			fmt.Fprintf(&sb, " / %d ⭐", p.StarsAmount)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nUse /buy <months> <method>. Methods: card, crypto, stars, transfer.")
	return b.reply(chatID, sb.String())
}

var buyMethods = map[string]model.Provider{
	"card":     model.ProviderYooKassa,
	"crypto":   model.ProviderCryptoPay,
	"stars":    model.ProviderStars,
	"transfer": model.ProviderManual,
}

func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.registerUser(ctx, msg); err != nil {
		return err
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return b.reply(msg.Chat.ID, "Usage: /buy <months> <method> [promo-code]")
	}
	months, err := strconv.Atoi(args[0])
	if err != nil || months <= 0 {
		return b.reply(msg.Chat.ID, "Months must be a positive number.")
	}
	prov, ok := buyMethods[strings.ToLower(args[1])]
	if !ok {
		return b.reply(msg.Chat.ID, "Unknown method. Use card, crypto, stars or transfer.")
	}
	plan, ok := b.planFor(months)
	if !ok {
		return b.reply(msg.Chat.ID, "No plan for that period. See /plans.")
	}
	promoCode := ""
	if len(args) > 2 {
		promoCode = args[2]
	}

	if prov == model.ProviderManual {
		return b.startTransfer(ctx, msg.Chat.ID, msg.From.ID, plan)
	}

	amount, currency := plan.Amount, plan.Currency
	if prov == model.ProviderStars {
		if plan.StarsAmount <= 0 {
			return b.reply(msg.Chat.ID, "This plan is not available for Stars.")
		}
		amount, currency = plan.StarsAmount, "XTR"
	}

	res, err := b.purchase.Start(ctx, usecase.PurchaseRequest{
		UserID:    msg.From.ID,
		Provider:  prov,
		Months:    plan.Months,
		Amount:    amount,
		Currency:  currency,
		PromoCode: promoCode,
	})
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Str("provider", string(prov)).
			Msg("purchase initiation failed")
		return b.reply(msg.Chat.ID, "Could not start the payment, please try again later.")
	}
	return b.reply(msg.Chat.ID, "Pay here: "+res.PayURL)
}

func (b *Bot) startTransfer(ctx context.Context, chatID, userID int64, plan config.PlanConfig) error {
	pt := b.cfg.Providers.PhoneTransfer
	if !pt.Enabled {
		return b.reply(chatID, "Phone transfers are not available.")
	}
	p, err := b.transfer.CreateRequest(ctx, userID, plan.Months, plan.Amount, plan.Currency)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("transfer request failed")
		return b.reply(chatID, "Could not create the transfer request, please try again later.")
	}
	_ = b.OpsEvent(ctx, fmt.Sprintf("💳 Transfer request %s: user %d, %d month(s), %d.%02d %s. Approve or reject in the admin panel.",
		p.ID, userID, plan.Months, plan.Amount/100, plan.Amount%100, plan.Currency))
	return b.reply(chatID, fmt.Sprintf(
		"Transfer %d.%02d %s to %s (%s) and wait for confirmation. Your request id: %s",
		plan.Amount/100, plan.Amount%100, plan.Currency, pt.PhoneNumber, pt.BankName, p.ID))
}

func (b *Bot) planFor(months int) (config.PlanConfig, bool) {
	for _, p := range b.cfg.Plans {
		if p.Months == months {
			return p, true
		}
	}
	return config.PlanConfig{}, false
}

func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := b.bot.Send(msg)
	return err
}

// registerUser upserts the sender; a numeric /start payload is the referrer id.
func (b *Bot) registerUser(ctx context.Context, msg *tgbotapi.Message) error {
	u := &model.User{
		ID:           msg.From.ID,
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LanguageCode: msg.From.LanguageCode,
		RegisteredAt: time.Now().UTC(),
	}
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		if refID, err := strconv.ParseInt(arg, 10, 64); err == nil && refID != msg.From.ID {
			u.ReferredByID = &refID
		}
	}
	return b.users.Save(ctx, nil, u)
}

// ===== adapter.Notifier =====

func (b *Bot) PaymentProcessed(ctx context.Context, out *model.ActivationOutcome) error {
	text := renderOutcome(out)
	if text == "" || out.UserID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(out.UserID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.bot.Send(msg)
	return err
}

func (b *Bot) OpsEvent(ctx context.Context, text string) error {
	if b.cfg.Telegram.OpsChannelID == 0 {
		return nil
	}
	_, err := b.bot.Send(tgbotapi.NewMessage(b.cfg.Telegram.OpsChannelID, text))
	return err
}

func renderOutcome(out *model.ActivationOutcome) string {
	switch {
	case out.Duplicate:
		return ""
	case out.UserMissing:
		return ""
	case out.Canceled:
		// A platform cancellation carries the clamped grace end date; a
		// cancelled payment attempt carries none.
		if !out.FinalEndDate.IsZero() {
			return "Your subscription was cancelled. Access remains until " + out.FinalEndDate.Format("02.01.2006 15:04") + " UTC."
		}
		return "Your payment was cancelled. No charge was applied."
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "✅ Payment received! Your subscription is active until <b>%s</b> UTC.", out.FinalEndDate.Format("02.01.2006 15:04"))
		if out.AppliedPromoDays > 0 {
			fmt.Fprintf(&sb, "\n🎁 Promo bonus: +%d days.", out.AppliedPromoDays)
		}
		if out.AppliedReferralDays > 0 {
			fmt.Fprintf(&sb, "\n🤝 Referral bonus: +%d days.", out.AppliedReferralDays)
		}
		if out.AccessLink != "" {
			fmt.Fprintf(&sb, "\n\n🔑 Access: %s", out.AccessLink)
		}
		return sb.String()
	}
}
