package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/config"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/domain/ports/repository"
	aiAdapters "telegram-ai-consult/internal/infra/adapters/ai"
	payAdapters "telegram-ai-consult/internal/infra/adapters/payment"
	tele "telegram-ai-consult/internal/infra/adapters/telegram"
	"telegram-ai-consult/internal/infra/db/postgres"
	"telegram-ai-consult/internal/infra/db/sqlite"
	"telegram-ai-consult/internal/infra/idgen"
	"telegram-ai-consult/internal/infra/memory"
	red "telegram-ai-consult/internal/infra/redis"
	"telegram-ai-consult/internal/usecase"
)

// storage bundles every repository the use cases need for one driver.
type storage struct {
	pending       repository.PendingPaymentRepository
	ledger        repository.LedgerRepository
	conversations repository.ConversationRepository
	states        repository.StateRepository
	locker        repository.Locker
	limiter       tele.RateLimiter

	pingers []pinger
	closers []func()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks every backing store; the first failure wins.
func (s *storage) Ping(ctx context.Context) error {
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage picks the payment store from storage.driver. When redis.url is
// set, locks, rate limits, bot state and conversations go to Redis so several
// replicas can share them; otherwise they stay in process memory.
func openStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*storage, error) {
	s := &storage{}
	fail := func(err error) (*storage, error) {
		s.Close()
		return nil, err
	}

	var rc *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		rc = c
		s.pingers = append(s.pingers, c)
		s.closers = append(s.closers, func() { _ = c.Close() })
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		s.pending = memory.NewPendingRepo()
		s.ledger = memory.NewLedgerRepo()
		logger.Warn().Msg("memory storage: payments are lost on restart")

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(fmt.Errorf("sqlite dir: %w", err))
			}
		}
		st, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("sqlite: %w", err))
		}
		s.pending, s.ledger = st.Pending(), st.Ledger()
		s.pingers = append(s.pingers, st)
		s.closers = append(s.closers, func() { _ = st.Close() })

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return fail(err)
		}
		s.pending, s.ledger = postgres.NewPendingRepo(pool), postgres.NewLedgerRepo(pool)
		s.pingers = append(s.pingers, pool)

	case config.DriverRedis:
		if rc == nil {
			return fail(fmt.Errorf("redis driver needs redis.url"))
		}
		s.pending, s.ledger = red.NewPendingRepo(rc, logger), red.NewLedgerRepo(rc)

	default:
		return fail(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
	}

	if rc != nil {
		s.locker = red.NewLocker(rc, logger)
		s.limiter = red.NewRateLimiter(rc)
		s.states = red.NewStateRepo(rc)
		s.conversations = red.NewConversationRepo(rc, cfg.Redis.TTL)
	} else {
		s.locker = memory.NewKeyedLocker()
		s.limiter = memory.NewRateLimiter()
		s.states = memory.NewStateRepo()
		s.conversations = memory.NewConversationRepo()
	}
	return s, nil
}

// buildCatalog turns configured tariffs into the catalog, falling back to
// the built-in set when none are listed.
func buildCatalog(cfg *config.Config) (*usecase.TariffCatalog, error) {
	if len(cfg.Tariffs) == 0 {
		return usecase.NewTariffCatalog(usecase.DefaultTariffs())
	}
	tariffs := make([]*model.Tariff, 0, len(cfg.Tariffs))
	for _, t := range cfg.Tariffs {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, fmt.Errorf("tariff %q: bad price %q: %w", t.ID, t.Price, err)
		}
		tariffs = append(tariffs, &model.Tariff{ID: t.ID, Price: price, Duration: t.Duration, Label: t.Label})
	}
	return usecase.NewTariffCatalog(tariffs)
}

func buildGateway(cfg *config.Config) (*payAdapters.RobokassaGateway, error) {
	rk := cfg.Payment.Robokassa
	return payAdapters.NewRobokassaGateway(rk.MerchantLogin, rk.PasswordOut, rk.PasswordIn, rk.BaseURL, rk.IsTest)
}

// buildPayments wires the payment use case over st.
func buildPayments(cfg *config.Config, st *storage, catalog *usecase.TariffCatalog, logger *zerolog.Logger) (usecase.PaymentUseCase, error) {
	gateway, err := buildGateway(cfg)
	if err != nil {
		return nil, err
	}
	// -1 picks a random node id; replicas sharing a store need distinct ids
	ids, err := idgen.NewSnowflake(-1)
	if err != nil {
		return nil, err
	}
	opts := usecase.PaymentOptions{
		PromoCodes:      cfg.Payment.PromoCodes,
		SimulatedCard:   cfg.Payment.SimulatedCard,
		AmountTolerance: cfg.Payment.Tolerance(),
	}
	return usecase.NewPaymentUseCase(catalog, st.pending, st.ledger, st.locker, gateway, ids, opts, logger), nil
}

// buildAI returns the configured provider behind the concurrency limiter.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	var (
		inner adapter.AIServiceAdapter
		err   error
	)
	switch cfg.AI.Provider {
	case "openai":
		inner, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Model)
	case "gemini":
		inner, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, "", cfg.AI.Model, 0)
	case "noop":
		inner = aiAdapters.NewNoopAIAdapter()
	default:
		err = fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Str("provider", inner.Name()).Str("model", cfg.AI.Model).Msg("AI adapter ready")
	return aiAdapters.NewLimitedAI(inner, cfg.AI.ConcurrentLimit, cfg.AI.Timeout, logger), nil
}
