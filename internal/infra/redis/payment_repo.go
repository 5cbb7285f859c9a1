package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var (
	_ repository.PendingPaymentRepository = (*PendingRepo)(nil)
	_ repository.LedgerRepository         = (*LedgerRepo)(nil)
)

const pendingIndexKey = "pending:by_created"

func pendingKey(invoiceID int64) string { return "pending:" + strconv.FormatInt(invoiceID, 10) }
func ledgerKey(userID string) string    { return "ledger:" + userID }

// intentDoc and recordDoc are the stored JSON shapes. Durations are whole
// seconds and amounts are fixed two-digit strings.
type intentDoc struct {
	InvoiceID int64     `json:"invoice_id"`
	UserID    string    `json:"user_id"`
	TariffID  string    `json:"tariff_id"`
	Amount    string    `json:"amount"`
	Seconds   int64     `json:"duration_seconds"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

type recordDoc struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	InvoiceID   int64     `json:"invoice_id"`
	Amount      string    `json:"amount"`
	Method      string    `json:"method"`
	Seconds     int64     `json:"duration_seconds"`
	Label       string    `json:"label"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// PendingRepo stores each intent under its own key. A sorted set indexed by
// creation time lets the pruner find stale intents without a scan.
type PendingRepo struct {
	client *Client
	log    *zerolog.Logger
}

func NewPendingRepo(client *Client, logger *zerolog.Logger) *PendingRepo {
	l := logger.With().Str("component", "RedisPendingRepo").Logger()
	return &PendingRepo{client: client, log: &l}
}

func (r *PendingRepo) Create(ctx context.Context, p *model.PaymentIntent) error {
	if p == nil || p.InvoiceID <= 0 {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(intentDoc{
		InvoiceID: p.InvoiceID,
		UserID:    p.UserID,
		TariffID:  p.TariffID,
		Amount:    p.Amount.StringFixed(2),
		Seconds:   int64(p.Duration / time.Second),
		Label:     p.Label,
		CreatedAt: p.CreatedAt.UTC(),
		Status:    string(p.Status),
	})
	if err != nil {
		return err
	}
	created, err := luaCreateIntent.Run(ctx, r.client.cli,
		[]string{pendingKey(p.InvoiceID), pendingIndexKey},
		data, p.CreatedAt.UnixMilli(), strconv.FormatInt(p.InvoiceID, 10),
	).Int()
	if err != nil {
		return mapErr(err)
	}
	if created == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// luaCreateIntent stores the intent and its index entry in one step, so an
// intent is never live without being prunable.
var luaCreateIntent = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1`)

func (r *PendingRepo) FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	data, err := r.client.Get(ctx, pendingKey(invoiceID))
	if err != nil {
		return nil, err
	}
	return decodeIntent(data)
}

// Consume relies on GETDEL: the key is read and removed in one command.
func (r *PendingRepo) Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	data, err := r.client.cli.GetDel(ctx, pendingKey(invoiceID)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	// a leftover index entry is harmless; the pruner drops it
	if err := r.client.cli.ZRem(ctx, pendingIndexKey, strconv.FormatInt(invoiceID, 10)).Err(); err != nil {
		r.log.Debug().Err(err).Int64("invoice_id", invoiceID).Msg("pending index cleanup failed")
	}
	return decodeIntent(data)
}

func (r *PendingRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := r.client.cli.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	n := 0
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		deleted, err := r.client.cli.Del(ctx, pendingKey(id)).Result()
		if err != nil {
			return n, mapErr(err)
		}
		n += int(deleted)
		if err := r.client.cli.ZRem(ctx, pendingIndexKey, member).Err(); err != nil {
			return n, mapErr(err)
		}
	}
	return n, nil
}

func decodeIntent(data string) (*model.PaymentIntent, error) {
	var d intentDoc
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, mapErr(err)
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, mapErr(err)
	}
	return &model.PaymentIntent{
		InvoiceID: d.InvoiceID,
		UserID:    d.UserID,
		TariffID:  d.TariffID,
		Amount:    amount,
		Duration:  time.Duration(d.Seconds) * time.Second,
		Label:     d.Label,
		CreatedAt: d.CreatedAt.UTC(),
		Status:    model.PaymentStatus(d.Status),
	}, nil
}

// LedgerRepo keeps one list per user. RPUSH of a single JSON document is the
// atomic append; LINDEX -1 is the last record.
type LedgerRepo struct {
	client *Client
}

func NewLedgerRepo(client *Client) *LedgerRepo {
	return &LedgerRepo{client: client}
}

func (r *LedgerRepo) Append(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(recordDoc{
		ID:          rec.ID,
		UserID:      rec.UserID,
		InvoiceID:   rec.InvoiceID,
		Amount:      rec.Amount.StringFixed(2),
		Method:      string(rec.Method),
		Seconds:     int64(rec.Duration / time.Second),
		Label:       rec.Label,
		ConfirmedAt: rec.ConfirmedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return mapErr(r.client.cli.RPush(ctx, ledgerKey(rec.UserID), data).Err())
}

func (r *LedgerRepo) Last(ctx context.Context, userID string) (*model.PaymentRecord, error) {
	data, err := r.client.cli.LIndex(ctx, ledgerKey(userID), -1).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeRecord(data)
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	items, err := r.client.cli.LRange(ctx, ledgerKey(userID), 0, -1).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]*model.PaymentRecord, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(data string) (*model.PaymentRecord, error) {
	var d recordDoc
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, mapErr(err)
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, mapErr(err)
	}
	return &model.PaymentRecord{
		ID:          d.ID,
		UserID:      d.UserID,
		InvoiceID:   d.InvoiceID,
		Amount:      amount,
		Method:      model.PaymentMethod(d.Method),
		Duration:    time.Duration(d.Seconds) * time.Second,
		Label:       d.Label,
		ConfirmedAt: d.ConfirmedAt.UTC(),
	}, nil
}
