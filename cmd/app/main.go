package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	pg "github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/db/postgres"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/logging"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/metrics"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/panel"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
	red "github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/redis"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/referral"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/sched"
	tele "github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/telegram"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/web"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/worker"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "development mode (console logs, noop notifier)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	logger.Info().
		Str("database", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).
		Str("redis", logging.Redact(cfg.Redis.URL, cfg.Runtime.Dev)).
		Msg("connecting to backing stores")

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	promoRepo := pg.NewPromoRepo(pool)
	grantRepo := pg.NewReferralGrantRepo(pool)
	tm := pg.NewTxManager(pool)

	metrics.MustRegister()

	// ---- Background pool for notifications ----
	notifyPool := worker.NewPool(cfg.Telegram.Workers, logger)
	notifyPool.Start(ctx)
	defer notifyPool.Stop()

	// The notifier is wired after the bot exists; until then outcomes go to
	// the noop notifier.
	var notifier adapter.Notifier = tele.NewNoopNotifier(logger)
	notify := func(out *model.ActivationOutcome) {
		n := notifier
		if err := notifyPool.Submit(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if out.UserMissing {
				return n.OpsEvent(ctx, fmt.Sprintf(
					"⚠️ Payment %s received for unknown user %d (%d %s). Manual reconciliation needed.",
					out.LedgerID, out.UserID, out.Amount, out.Currency))
			}
			return n.PaymentProcessed(ctx, out)
		}); err != nil {
			logger.Warn().Err(err).Str("ledger_id", out.LedgerID).Msg("notification dropped")
		}
	}

	// ---- Panel ----
	var panelClient adapter.PanelClient = panel.NoopClient{}
	if cfg.Panel.BaseURL != "" {
		panelClient = panel.NewClient(cfg.Panel, cfg.Providers.RequestTimeout, logger)
	}

	// ---- Referral ----
	var referrals adapter.ReferralService
	if cfg.Referral.Enabled {
		referrals = referral.NewService(userRepo, subRepo, grantRepo, tm,
			cfg.Referral.RefereeDays, cfg.Referral.ReferrerDays, logger)
	}

	// ---- Use cases ----
	activationUC := usecase.NewActivationUseCase(subRepo, logger)
	bonusUC := usecase.NewBonusChainUseCase(promoRepo, activationUC, referrals, tm, logger)
	intakeUC := usecase.NewPaymentIntakeUseCase(
		paymentRepo, subRepo, userRepo, activationUC, bonusUC, tm, locker, panelClient, notify, logger)
	transferUC := usecase.NewTransferUseCase(paymentRepo, intakeUC, logger)

	// The gateways map is shared by reference: the Stars gateway needs the
	// bot, which needs the purchase use case, which reads this map at call
	// time, so entries are filled in after both exist.
	gateways := map[model.Provider]adapter.PaymentGateway{}
	purchaseUC := usecase.NewPurchaseUseCase(paymentRepo, promoRepo, gateways, tm, logger)

	// ---- Telegram bot ----
	bot, err := tele.NewBot(cfg, userRepo, intakeUC, purchaseUC, transferUC, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram bot init failed")
	}
	if !cfg.Runtime.Dev {
		notifier = bot
	}
	go func() {
		if err := bot.StartPolling(ctx); err != nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Provider adapters and gateways ----
	var adapters []provider.Adapter

	if cfg.Providers.YooKassa.Enabled {
		yk, err := provider.NewYooKassa(cfg.Providers.YooKassa, cfg.Providers.RequestTimeout, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa init failed")
		}
		adapters = append(adapters, yk)
		gateways[model.ProviderYooKassa] = yk
	}
	if cfg.Providers.CryptoPay.Enabled {
		cp := provider.NewCryptoPay(cfg.Providers.CryptoPay, cfg.Providers.RequestTimeout, logger)
		adapters = append(adapters, cp)
		gateways[model.ProviderCryptoPay] = cp
	}
	if cfg.Providers.Tribute.Enabled {
		adapters = append(adapters, provider.NewTribute(cfg.Providers.Tribute, logger))
	}
	if cfg.Providers.Stars.Enabled {
		gateways[model.ProviderStars] = tele.NewStarsGateway(bot)
	}

	// ---- Web server ----
	var auth *web.AuthManager
	if cfg.Web.AdminJWTSecret != "" {
		auth = web.NewAuthManager(cfg.Web.AdminJWTSecret, 30*time.Minute)
	}
	srv := web.NewServer(cfg.Web.Port, intakeUC, transferUC, adapters, auth, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("web server stopped")
		}
	}()

	// ---- Reconciler ----
	if cfg.Reconciler.Interval > 0 {
		rec := sched.NewPaymentReconciler(intakeUC, paymentRepo, gateways,
			cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger)
		go rec.Start(ctx)
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("web server shutdown error")
	}
	bot.StopPolling()
	cancel()
}
