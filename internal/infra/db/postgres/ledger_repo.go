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

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

type ledgerRepo struct{ pool *pgxpool.Pool }

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

const recordColumns = `id, user_id, invoice_id, amount::text, method, duration_seconds, label, confirmed_at`

func (r *ledgerRepo) Append(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payment_records (
  id, user_id, invoice_id, amount, method, duration_seconds, label, confirmed_at
) VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, q,
		rec.ID, rec.UserID, rec.InvoiceID, rec.Amount.StringFixed(2), string(rec.Method),
		int64(rec.Duration/time.Second), rec.Label, rec.ConfirmedAt)
	return err
}

func (r *ledgerRepo) Last(ctx context.Context, userID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM payment_records WHERE user_id=$1 ORDER BY seq DESC LIMIT 1;`
	rec, err := scanRecord(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM payment_records WHERE user_id=$1 ORDER BY seq ASC;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*model.PaymentRecord, error) {
	var (
		rec     model.PaymentRecord
		amount  string
		method  string
		seconds int64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.InvoiceID, &amount, &method, &seconds, &rec.Label, &rec.ConfirmedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	rec.Amount = d
	rec.Method = model.PaymentMethod(method)
	rec.Duration = time.Duration(seconds) * time.Second
	rec.ConfirmedAt = rec.ConfirmedAt.UTC()
	return &rec, nil
}
