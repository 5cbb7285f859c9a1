package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
)

// TariffCatalog is the immutable table of purchasable tariffs. It is built
// once at startup and safe for concurrent reads.
type TariffCatalog struct {
	byID  map[string]*model.Tariff
	order []*model.Tariff
}

// DefaultTariffs is used when the configuration does not list any.
func DefaultTariffs() []*model.Tariff {
	return []*model.Tariff{
		{ID: "tariff_1h", Price: decimal.RequireFromString("2999.00"), Duration: time.Hour, Label: "1 hour"},
		{ID: "tariff_24h", Price: decimal.RequireFromString("4999.00"), Duration: 24 * time.Hour, Label: "24 hours"},
		{ID: "tariff_7d", Price: decimal.RequireFromString("14999.00"), Duration: 7 * 24 * time.Hour, Label: "7 days"},
	}
}

// NewTariffCatalog validates the tariffs and rejects duplicate ids.
func NewTariffCatalog(tariffs []*model.Tariff) (*TariffCatalog, error) {
	if len(tariffs) == 0 {
		return nil, fmt.Errorf("tariff catalog is empty: %w", domain.ErrInvalidArgument)
	}
	c := &TariffCatalog{byID: make(map[string]*model.Tariff, len(tariffs))}
	for _, t := range tariffs {
		if t == nil {
			return nil, domain.ErrInvalidArgument
		}
		v, err := model.NewTariff(t.ID, t.Price, t.Duration, t.Label)
		if err != nil {
			return nil, fmt.Errorf("tariff %q: %w", t.ID, err)
		}
		if _, dup := c.byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate tariff %q: %w", v.ID, domain.ErrAlreadyExists)
		}
		c.byID[v.ID] = v
		c.order = append(c.order, v)
	}
	return c, nil
}

// Tariff resolves an id. Unknown ids are a caller error, never defaulted.
func (c *TariffCatalog) Tariff(id string) (*model.Tariff, error) {
	t, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, domain.ErrInvalidTariff
	}
	cp := *t
	return &cp, nil
}

// List returns the tariffs in configuration order.
func (c *TariffCatalog) List() []*model.Tariff {
	out := make([]*model.Tariff, 0, len(c.order))
	for _, t := range c.order {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// Default is the first configured tariff; promo redemption without an
// explicit tariff uses it.
func (c *TariffCatalog) Default() *model.Tariff {
	cp := *c.order[0]
	return &cp
}
