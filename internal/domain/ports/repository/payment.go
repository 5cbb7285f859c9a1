package repository

import (
	"context"
	"time"

	"telegram-ai-consult/internal/domain/model"
)

// -----------------------------
// Pending payments
// -----------------------------

// PendingPaymentRepository holds in-flight checkouts keyed by invoice id.
//
// Create must fail with domain.ErrAlreadyExists when the id is taken; it never
// overwrites. Consume atomically reads and removes an intent: of any number of
// concurrent Consume calls for one id, exactly one returns the intent and the
// rest observe domain.ErrNotFound.
type PendingPaymentRepository interface {
	Create(ctx context.Context, p *model.PaymentIntent) error
	FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error)
	Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// -----------------------------
// Ledger
// -----------------------------

// LedgerRepository is the append-only per-user history of confirmed payments.
// A reader never observes a partially written record.
type LedgerRepository interface {
	Append(ctx context.Context, r *model.PaymentRecord) error
	// Last returns the most recently appended record or domain.ErrNotFound.
	Last(ctx context.Context, userID string) (*model.PaymentRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*model.PaymentRecord, error)
}
