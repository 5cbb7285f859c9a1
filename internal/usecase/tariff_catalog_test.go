//go:build !integration

package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/usecase"
)

func TestTariffCatalog(t *testing.T) {
	c, err := usecase.NewTariffCatalog(usecase.DefaultTariffs())
	if err != nil {
		t.Fatalf("default catalog should be valid: %v", err)
	}

	want := map[string]struct {
		price string
		dur   time.Duration
	}{
		"tariff_1h":  {"2999.00", time.Hour},
		"tariff_24h": {"4999.00", 24 * time.Hour},
		"tariff_7d":  {"14999.00", 7 * 24 * time.Hour},
	}
	for id, w := range want {
		tr, err := c.Tariff(id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if tr.Price.StringFixed(2) != w.price || tr.Duration != w.dur {
			t.Errorf("%s: got %s/%s", id, tr.Price.StringFixed(2), tr.Duration)
		}
	}

	if _, err := c.Tariff("tariff_2h"); !errors.Is(err, domain.ErrInvalidTariff) {
		t.Errorf("expected ErrInvalidTariff, got %v", err)
	}
	if c.Default().ID != "tariff_1h" {
		t.Errorf("default should be the first tariff, got %s", c.Default().ID)
	}
	if ids := c.List(); len(ids) != 3 || ids[2].ID != "tariff_7d" {
		t.Errorf("list should keep configured order, got %+v", ids)
	}

	// returned values are copies
	tr, _ := c.Tariff("tariff_1h")
	tr.Price = decimal.Zero
	again, _ := c.Tariff("tariff_1h")
	if again.Price.IsZero() {
		t.Error("catalog must not be mutable through returned tariffs")
	}
}

func TestNewTariffCatalog_Invalid(t *testing.T) {
	price := decimal.RequireFromString("10.00")
	cases := map[string][]*model.Tariff{
		"empty":     nil,
		"duplicate": {{ID: "a", Price: price, Duration: time.Hour}, {ID: "a", Price: price, Duration: time.Hour}},
		"zero":      {{ID: "a", Price: decimal.Zero, Duration: time.Hour}},
		"no time":   {{ID: "a", Price: price}},
	}
	for name, tariffs := range cases {
		if _, err := usecase.NewTariffCatalog(tariffs); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
