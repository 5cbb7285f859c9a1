//go:build !integration

package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "consult.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intent(id int64, createdAt time.Time) *model.PaymentIntent {
	return &model.PaymentIntent{
		InvoiceID: id,
		UserID:    "42",
		TariffID:  "tariff_24h",
		Amount:    decimal.RequireFromString("4999.00"),
		Duration:  24 * time.Hour,
		Label:     "24 hours",
		CreatedAt: createdAt,
		Status:    model.PaymentStatusPending,
	}
}

func TestPendingRepo(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("round trip and exactly-once consume", func(t *testing.T) {
		repo := openTestStore(t).Pending()
		require.NoError(t, repo.Create(ctx, intent(1001, base)))
		assert.ErrorIs(t, repo.Create(ctx, intent(1001, base)), domain.ErrAlreadyExists)

		got, err := repo.FindByInvoiceID(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, "42", got.UserID)
		assert.Equal(t, "4999.00", got.Amount.StringFixed(2))
		assert.Equal(t, 24*time.Hour, got.Duration)
		assert.True(t, got.CreatedAt.Equal(base))
		assert.Equal(t, model.PaymentStatusPending, got.Status)

		consumed, err := repo.Consume(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, int64(1001), consumed.InvoiceID)

		_, err = repo.Consume(ctx, 1001)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.FindByInvoiceID(ctx, 1001)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		repo := openTestStore(t).Pending()
		require.NoError(t, repo.Create(ctx, intent(77, base)))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Consume(ctx, 77); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})

	t.Run("prune by creation time", func(t *testing.T) {
		repo := openTestStore(t).Pending()
		require.NoError(t, repo.Create(ctx, intent(1, base)))
		require.NoError(t, repo.Create(ctx, intent(2, base.Add(3*time.Hour))))

		n, err := repo.DeleteCreatedBefore(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.FindByInvoiceID(ctx, 2)
		assert.NoError(t, err)
	})
}

func TestLedgerRepo(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.Ledger()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.Last(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Append(ctx, &model.PaymentRecord{
		ID: "01A", UserID: "42", Amount: decimal.RequireFromString("2999"), Method: model.PaymentMethodPromo,
		Duration: time.Hour, Label: "1 hour", ConfirmedAt: base,
	}))
	require.NoError(t, repo.Append(ctx, &model.PaymentRecord{
		ID: "01B", UserID: "42", InvoiceID: 1001, Amount: decimal.RequireFromString("4999.00"), Method: model.PaymentMethodGateway,
		Duration: 24 * time.Hour, Label: "24 hours", ConfirmedAt: base.Add(time.Minute),
	}))
	assert.ErrorIs(t, repo.Append(ctx, &model.PaymentRecord{ID: "01B", UserID: "42"}), domain.ErrAlreadyExists)

	last, err := repo.Last(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "01B", last.ID)
	assert.Equal(t, int64(1001), last.InvoiceID)
	assert.Equal(t, model.PaymentMethodGateway, last.Method)
	assert.True(t, last.ConfirmedAt.Equal(base.Add(time.Minute)))

	all, err := repo.ListByUser(ctx, "42")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2999.00", all[0].Amount.StringFixed(2))

	require.NoError(t, s.Ping(ctx))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "consult.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Pending().Create(ctx, intent(5, time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Pending().FindByInvoiceID(ctx, 5)
	assert.NoError(t, err, "intents survive a restart")
}
