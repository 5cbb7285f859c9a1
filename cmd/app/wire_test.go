//go:build !integration

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-ai-consult/internal/config"
	payAdapters "telegram-ai-consult/internal/infra/adapters/payment"
	"telegram-ai-consult/internal/infra/api"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Driver = driver
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "data", "consult.db")
	cfg.Payment.Robokassa = config.RobokassaConfig{
		MerchantLogin: "demo-shop",
		PasswordOut:   "out-secret",
		PasswordIn:    "in-secret",
		BaseURL:       "https://pay.example/Index.aspx",
		IsTest:        true,
		ResultPath:    "/payment/result",
	}
	cfg.Payment.PromoCodes = []string{"TEST2024"}
	cfg.Payment.AmountTolerance = "0.01"
	return cfg
}

func TestBuildCatalog(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	c, err := buildCatalog(cfg)
	require.NoError(t, err)
	assert.Len(t, c.List(), 3, "defaults when none configured")

	cfg.Tariffs = []config.TariffConfig{{ID: "trial", Price: "1000.00", Duration: time.Hour, Label: "Trial"}}
	c, err = buildCatalog(cfg)
	require.NoError(t, err)
	assert.Equal(t, "trial", c.Default().ID)
	assert.Equal(t, "1000.00", c.Default().Price.StringFixed(2))

	cfg.Tariffs[0].Price = "abc"
	_, err = buildCatalog(cfg)
	assert.Error(t, err)

	cfg.Tariffs[0].Price = "-5"
	_, err = buildCatalog(cfg)
	assert.Error(t, err)
}

func TestOpenStorage_SQLite(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := testConfig(t, config.DriverSQLite)

	st, err := openStorage(context.Background(), cfg, &logger)
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.Ping(context.Background()))
	assert.NotNil(t, st.pending)
	assert.NotNil(t, st.ledger)
	assert.NotNil(t, st.conversations)
	assert.NotNil(t, st.limiter)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	logger := zerolog.New(io.Discard)
	_, err := openStorage(context.Background(), testConfig(t, "mongo"), &logger)
	assert.Error(t, err)
}

func TestSignedNoticeURL(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	raw := signedNoticeURL(cfg, "http://localhost:8080/", 1001, "2999.00")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/payment/result", u.Path)
	q := u.Query()
	inv, _ := strconv.ParseInt(q.Get("InvId"), 10, 64)
	assert.Equal(t, int64(1001), inv)
	assert.True(t, payAdapters.Verify(q.Get("OutSum"), inv, q.Get("SignatureValue"), "in-secret"))
}

func TestPrintStatus(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := testConfig(t, config.DriverMemory)
	st, err := openStorage(context.Background(), cfg, &logger)
	require.NoError(t, err)
	catalog, err := buildCatalog(cfg)
	require.NoError(t, err)
	payUC, err := buildPayments(cfg, st, catalog, &logger)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printStatus(context.Background(), &buf, payUC, "42", time.Now()))
	assert.Contains(t, buf.String(), "Entitlement: none")
	assert.Contains(t, buf.String(), "No payments.")

	_, err = payUC.RedeemPromo(context.Background(), "42", "tariff_1h", "TEST2024")
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, printStatus(context.Background(), &buf, payUC, "42", time.Now()))
	assert.Contains(t, buf.String(), "Entitlement: ACTIVE")
	assert.Contains(t, buf.String(), "promo")
	assert.Contains(t, buf.String(), "2999.00")
}

func TestMintAdminToken(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	_, err := mintAdminToken(cfg, "ops")
	assert.Error(t, err, "no secret configured")

	cfg.Admin.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Admin.TokenTTL = time.Minute
	tok, err := mintAdminToken(cfg, "ops")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/admin/users/1", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	claims, err := api.NewAuthManager(cfg.Admin.JWTSecret, time.Minute).ParseFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}
