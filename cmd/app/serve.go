package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"telegram-ai-consult/internal/config"
	aiAdapters "telegram-ai-consult/internal/infra/adapters/ai"
	tele "telegram-ai-consult/internal/infra/adapters/telegram"
	"telegram-ai-consult/internal/infra/api"
	"telegram-ai-consult/internal/infra/i18n"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/infra/metrics"
	"telegram-ai-consult/internal/infra/sched"
	"telegram-ai-consult/internal/infra/worker"
	"telegram-ai-consult/internal/usecase"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	var noTelegram bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the payment callback server and the pruner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, noTelegram)
		},
	}
	cmd.Flags().BoolVar(&noTelegram, "no-telegram", false, "log outgoing bot messages instead of polling Telegram")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, noTelegram bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	if err := metrics.Register(nil); err != nil {
		return err
	}
	metrics.SetBuildInfo(Version, Commit, cfg.Storage.Driver)

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Storage.Driver).Bool("redis", cfg.Redis.URL != "").Msg("storage ready")

	// ---- Use cases ----
	catalog, err := buildCatalog(cfg)
	if err != nil {
		return err
	}
	payUC, err := buildPayments(cfg, st, catalog, logger)
	if err != nil {
		return err
	}
	gate := usecase.NewConversationGate(payUC, logger)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return err
	}
	systemPrompt := cfg.AI.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = tr.Prompt()
	}

	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	window := aiAdapters.NewTokenWindow(cfg.AI.MaxHistoryTokens, logger)
	chatUC := usecase.NewChatUseCase(st.conversations, ai, window, gate, st.locker, systemPrompt, cfg.AI.Model, logger)

	// ---- Telegram ----
	var botAPI tele.API
	if noTelegram {
		botAPI = tele.NewNoopAPI(logger)
	} else {
		botAPI, err = tele.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			return err
		}
	}
	bot, err := tele.NewBot(botAPI, tele.Deps{
		Payments:    payUC,
		Chat:        chatUC,
		Catalog:     catalog,
		States:      st.states,
		RateLimiter: st.limiter,
		Translator:  tr,
	}, tele.Options{
		Workers:      cfg.Bot.Workers,
		RateLimit:    cfg.Bot.RateLimit,
		RateWindow:   cfg.Bot.RateWindow,
		PromoEnabled: len(cfg.Payment.PromoCodes) > 0,
		CardEnabled:  cfg.Payment.SimulatedCard,
	}, logger)
	if err != nil {
		return err
	}

	// ---- HTTP callback server ----
	notifyPool := worker.NewPool(cfg.Bot.NotifyWorkers, 0, logger)
	opts := api.Options{
		ResultPath:  cfg.Payment.Robokassa.ResultPath,
		BotUsername: cfg.Bot.Username,
		Notifier:    api.NewAsyncNotifier(notifyPool, bot, 0, logger),
		Store:       st,
	}
	if cfg.Admin.JWTSecret != "" {
		opts.Auth = api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		opts.Accounts = payUC
		logger.Info().Msg("admin API enabled")
	}
	srv := api.NewServer(payUC, opts, logger)

	// ---- Pruner ----
	pruner := sched.NewPendingPruner(cfg.Payment.PruneInterval, cfg.Payment.PendingTTL, payUC, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.HTTP.Port, cfg.HTTP.ShutdownTimeout) })
	g.Go(func() error { return bot.StartPolling(ctx) })
	g.Go(func() error { return pruner.Run(ctx) })
	g.Go(func() error { return notifyPool.Run(ctx) })

	logger.Info().Str("version", Version).Int("tariffs", len(catalog.List())).Msg("consult bot started")
	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
