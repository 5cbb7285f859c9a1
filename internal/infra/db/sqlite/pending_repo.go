package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.PendingPaymentRepository = (*PendingRepo)(nil)

type PendingRepo struct{ db *sql.DB }

const pendingColumns = `invoice_id, user_id, tariff_id, amount, duration_seconds, label, created_at, status`

func (r *PendingRepo) Create(ctx context.Context, p *model.PaymentIntent) error {
	if p == nil || p.InvoiceID <= 0 {
		return domain.ErrInvalidArgument
	}
	const q = `INSERT INTO pending_payments (` + pendingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		p.InvoiceID, p.UserID, p.TariffID, p.Amount.StringFixed(2),
		int64(p.Duration/time.Second), p.Label, p.CreatedAt.UnixMilli(), string(p.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storageErr(err)
	}
	return nil
}

func (r *PendingRepo) FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	const q = `SELECT ` + pendingColumns + ` FROM pending_payments WHERE invoice_id = ?`
	return scanIntent(r.db.QueryRowContext(ctx, q, invoiceID))
}

// Consume deletes and returns the row in one statement, so of two racing
// callers only one sees it.
func (r *PendingRepo) Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	const q = `DELETE FROM pending_payments WHERE invoice_id = ? RETURNING ` + pendingColumns
	return scanIntent(r.db.QueryRowContext(ctx, q, invoiceID))
}

func (r *PendingRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err)
	}
	return int(n), nil
}

func scanIntent(row *sql.Row) (*model.PaymentIntent, error) {
	var (
		p         model.PaymentIntent
		amount    string
		seconds   int64
		createdAt int64
		status    string
	)
	if err := row.Scan(&p.InvoiceID, &p.UserID, &p.TariffID, &amount, &seconds, &p.Label, &createdAt, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr(err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, storageErr(err)
	}
	p.Amount = d
	p.Duration = time.Duration(seconds) * time.Second
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
