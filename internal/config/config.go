// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Workers  int    `yaml:"workers"` // polling workers
	Language string `yaml:"language"`
	// RateLimit is the number of chat messages a user may send per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	// NotifyWorkers deliver payment confirmations outside the callback request.
	NotifyWorkers int `yaml:"notify_workers"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type StorageConfig struct {
	Driver     string `yaml:"driver"` // memory|sqlite|postgres|redis
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // conversation and bot state ttl
}

type AIConfig struct {
	Provider         string        `yaml:"provider"` // openai|gemini|noop
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	Model            string        `yaml:"model"`
	MaxHistoryTokens int           `yaml:"max_history_tokens"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout          time.Duration `yaml:"timeout"`
	SystemPrompt     string        `yaml:"system_prompt"`
}

type RobokassaConfig struct {
	MerchantLogin string `yaml:"merchant_login"`
	PasswordOut   string `yaml:"password_out"` // Password1, signs redirects
	PasswordIn    string `yaml:"password_in"`  // Password2, verifies result notices
	BaseURL       string `yaml:"base_url"`
	IsTest        bool   `yaml:"is_test"`
	ResultPath    string `yaml:"result_path"`
}

type PaymentConfig struct {
	Robokassa       RobokassaConfig `yaml:"robokassa"`
	PromoCodes      []string        `yaml:"promo_codes"`
	SimulatedCard   bool            `yaml:"simulated_card"`
	AmountTolerance string          `yaml:"amount_tolerance"`
	PendingTTL      time.Duration   `yaml:"pending_ttl"`
	PruneInterval   time.Duration   `yaml:"prune_interval"`
}

// Tolerance returns the parsed amount tolerance. Load has already validated it.
func (p PaymentConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(p.AmountTolerance)
	if err != nil {
		return decimal.New(1, -2)
	}
	return d
}

// AdminConfig guards the read-only admin API. An empty secret leaves it unmounted.
type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type TariffConfig struct {
	ID       string        `yaml:"id"`
	Price    string        `yaml:"price"`
	Duration time.Duration `yaml:"duration"`
	Label    string        `yaml:"label"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Payment  PaymentConfig  `yaml:"payment"`
	Admin    AdminConfig    `yaml:"admin"`
	Tariffs  []TariffConfig `yaml:"tariffs"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverrides maps secret-bearing environment variables onto config fields.
// Secrets are expected to arrive this way; the yaml values are a fallback for
// local runs only.
func envOverrides(cfg *Config) []struct {
	name string
	dst  *string
} {
	return []struct {
		name string
		dst  *string
	}{
		{"BOT_TOKEN", &cfg.Bot.Token},
		{"ROBOKASSA_MERCHANT_LOGIN", &cfg.Payment.Robokassa.MerchantLogin},
		{"ROBOKASSA_PASSWORD_OUT", &cfg.Payment.Robokassa.PasswordOut},
		{"ROBOKASSA_PASSWORD_IN", &cfg.Payment.Robokassa.PasswordIn},
		{"OPENAI_API_KEY", &cfg.AI.OpenAIKey},
		{"GEMINI_API_KEY", &cfg.AI.GeminiKey},
		{"DATABASE_URL", &cfg.Database.URL},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret},
	}
}

// Load reads the yaml file at path, applies .env and environment overrides,
// fills defaults and validates the result.
func Load(path string, dev bool) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, o := range envOverrides(&cfg) {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			*o.dst = v
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "ru"
	}
	if cfg.Bot.RateLimit <= 0 {
		cfg.Bot.RateLimit = 20
	}
	if cfg.Bot.RateWindow <= 0 {
		cfg.Bot.RateWindow = time.Minute
	}
	if cfg.Bot.NotifyWorkers <= 0 {
		cfg.Bot.NotifyWorkers = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/consult.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.MaxHistoryTokens <= 0 {
		cfg.AI.MaxHistoryTokens = 6000
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Payment.Robokassa.ResultPath == "" {
		cfg.Payment.Robokassa.ResultPath = "/payment/result"
	}
	if cfg.Payment.AmountTolerance == "" {
		cfg.Payment.AmountTolerance = "0.01"
	}
	if cfg.Payment.PendingTTL <= 0 {
		cfg.Payment.PendingTTL = 24 * time.Hour
	}
	if cfg.Payment.PruneInterval <= 0 {
		cfg.Payment.PruneInterval = time.Hour
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
}

// Validate checks required secrets and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token (BOT_TOKEN) is required"))
	}
	rk := c.Payment.Robokassa
	if rk.MerchantLogin == "" {
		errs = append(errs, errors.New("payment.robokassa.merchant_login (ROBOKASSA_MERCHANT_LOGIN) is required"))
	}
	if rk.PasswordOut == "" || rk.PasswordIn == "" {
		errs = append(errs, errors.New("payment.robokassa.password_out and password_in (ROBOKASSA_PASSWORD_OUT/IN) are required"))
	}
	if !strings.HasPrefix(rk.ResultPath, "/") {
		errs = append(errs, errors.New("payment.robokassa.result_path must start with /"))
	}
	if tol, err := decimal.NewFromString(c.Payment.AmountTolerance); err != nil || tol.IsNegative() {
		errs = append(errs, fmt.Errorf("payment.amount_tolerance %q is not a non-negative decimal", c.Payment.AmountTolerance))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url (DATABASE_URL) is required for the postgres driver"))
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory|sqlite|postgres|redis", c.Storage.Driver))
	}

	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			errs = append(errs, errors.New("ai.openai_key (OPENAI_API_KEY) is required for the openai provider"))
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			errs = append(errs, errors.New("ai.gemini_key (GEMINI_API_KEY) is required for the gemini provider"))
		}
	case "noop":
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q is not one of openai|gemini|noop", c.AI.Provider))
	}

	if s := c.Admin.JWTSecret; s != "" && len(s) < 32 {
		errs = append(errs, errors.New("admin.jwt_secret (ADMIN_JWT_SECRET) must be at least 32 bytes"))
	}

	seen := make(map[string]bool, len(c.Tariffs))
	for _, t := range c.Tariffs {
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("tariff %q listed twice", t.ID))
		}
		seen[t.ID] = true
	}
	return errors.Join(errs...)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
