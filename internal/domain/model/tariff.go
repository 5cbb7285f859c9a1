package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
)

// Tariff is a purchasable (price, duration) offering. Tariffs are loaded
// once at startup and never mutated afterwards.
type Tariff struct {
	ID       string
	Price    decimal.Decimal
	Duration time.Duration
	Label    string
}

// NewTariff validates and constructs a tariff. Prices must be positive and
// representable with two fractional digits; durations are whole seconds.
func NewTariff(id string, price decimal.Decimal, duration time.Duration, label string) (*Tariff, error) {
	id = strings.TrimSpace(id)
	if id == "" || !price.IsPositive() || duration < time.Second {
		return nil, domain.ErrInvalidArgument
	}
	if !price.Equal(price.Round(2)) || duration%time.Second != 0 {
		return nil, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(label) == "" {
		label = id
	}
	return &Tariff{ID: id, Price: price, Duration: duration, Label: label}, nil
}
