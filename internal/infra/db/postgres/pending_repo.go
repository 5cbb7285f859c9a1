package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.PendingPaymentRepository = (*pendingRepo)(nil)

type pendingRepo struct{ pool *pgxpool.Pool }

func NewPendingRepo(pool *pgxpool.Pool) *pendingRepo {
	return &pendingRepo{pool: pool}
}

const pendingColumns = `invoice_id, user_id, tariff_id, amount::text, duration_seconds, label, created_at, status`

func (r *pendingRepo) Create(ctx context.Context, p *model.PaymentIntent) error {
	if p == nil || p.InvoiceID <= 0 {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO pending_payments (
  invoice_id, user_id, tariff_id, amount, duration_seconds, label, created_at, status
) VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, q,
		p.InvoiceID, p.UserID, p.TariffID, p.Amount.StringFixed(2),
		int64(p.Duration/time.Second), p.Label, p.CreatedAt, string(p.Status))
	return err
}

func (r *pendingRepo) FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	q := `SELECT ` + pendingColumns + ` FROM pending_payments WHERE invoice_id=$1;`
	return scanIntent(r.pool.QueryRow(ctx, q, invoiceID))
}

// Consume deletes and returns the row in one statement; a concurrent second
// delete finds no row.
func (r *pendingRepo) Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	q := `DELETE FROM pending_payments WHERE invoice_id=$1 RETURNING ` + pendingColumns + `;`
	return scanIntent(r.pool.QueryRow(ctx, q, invoiceID))
}

func (r *pendingRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := execSQL(ctx, r.pool, `DELETE FROM pending_payments WHERE created_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanIntent(row pgx.Row) (*model.PaymentIntent, error) {
	var (
		p       model.PaymentIntent
		amount  string
		seconds int64
		status  string
	)
	if err := row.Scan(&p.InvoiceID, &p.UserID, &p.TariffID, &amount, &seconds, &p.Label, &p.CreatedAt, &status); err != nil {
		return nil, mapErr(err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, mapErr(err)
	}
	p.Amount = d
	p.Duration = time.Duration(seconds) * time.Second
	p.CreatedAt = p.CreatedAt.UTC()
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
