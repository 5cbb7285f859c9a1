package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // redirected to gateway; awaiting callback
)

type PaymentMethod string

const (
	PaymentMethodPromo   PaymentMethod = "promo"   // promo code, bypasses the gateway
	PaymentMethodCard    PaymentMethod = "card"    // simulated card payment (dev only)
	PaymentMethodGateway PaymentMethod = "gateway" // confirmed by a signed gateway callback
)

// PaymentIntent is an in-flight checkout keyed by invoice id. It is created
// at checkout and consumed exactly once on confirmation.
type PaymentIntent struct {
	InvoiceID int64
	UserID    string
	TariffID  string
	Amount    decimal.Decimal
	Duration  time.Duration
	Label     string
	CreatedAt time.Time
	Status    PaymentStatus
}

// PaymentRecord is an immutable ledger entry for a confirmed payment.
type PaymentRecord struct {
	ID          string // ULID
	UserID      string
	InvoiceID   int64 // zero for promo and card payments
	Amount      decimal.Decimal
	Method      PaymentMethod
	Duration    time.Duration
	Label       string
	ConfirmedAt time.Time
}

// ExpiresAt is the first instant at which the record no longer entitles.
func (r *PaymentRecord) ExpiresAt() time.Time {
	return r.ConfirmedAt.Add(r.Duration)
}

// ActiveAt reports whether the record entitles its user at now.
func (r *PaymentRecord) ActiveAt(now time.Time) bool {
	return now.Sub(r.ConfirmedAt) < r.Duration
}

// Entitlement is derived from the most recent ledger record; it is never stored.
type Entitlement struct {
	UserID    string
	Active    bool
	Label     string
	ExpiresAt time.Time
}

// Remaining returns the time left at now, or zero when inactive.
func (e Entitlement) Remaining(now time.Time) time.Duration {
	if !e.Active {
		return 0
	}
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// CallbackNotice is a parsed gateway notification. OutSum keeps the exact
// string the gateway sent because the signature is computed over it.
type CallbackNotice struct {
	InvoiceID int64
	OutSum    string
	Signature string
}
