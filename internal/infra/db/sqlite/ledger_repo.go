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

var _ repository.LedgerRepository = (*LedgerRepo)(nil)

// LedgerRepo is append-only. Each record is one INSERT, so readers see either
// the whole row or nothing.
type LedgerRepo struct{ db *sql.DB }

const recordColumns = `id, user_id, invoice_id, amount, method, duration_seconds, label, confirmed_at`

func (r *LedgerRepo) Append(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `INSERT INTO payment_records (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.InvoiceID, rec.Amount.StringFixed(2), string(rec.Method),
		int64(rec.Duration/time.Second), rec.Label, rec.ConfirmedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storageErr(err)
	}
	return nil
}

func (r *LedgerRepo) Last(ctx context.Context, userID string) (*model.PaymentRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM payment_records WHERE user_id = ? ORDER BY seq DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr(err)
	}
	return rec, nil
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM payment_records WHERE user_id = ? ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.PaymentRecord, error) {
	var (
		rec         model.PaymentRecord
		amount      string
		method      string
		seconds     int64
		confirmedAt int64
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.InvoiceID, &amount, &method, &seconds, &rec.Label, &confirmedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	rec.Amount = d
	rec.Method = model.PaymentMethod(method)
	rec.Duration = time.Duration(seconds) * time.Second
	rec.ConfirmedAt = time.UnixMilli(confirmedAt).UTC()
	return &rec, nil
}
