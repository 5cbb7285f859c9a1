//go:build integration

package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
)

func TestPendingRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPendingRepo(testPool)
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	newIntent := func(id int64, at time.Time) *model.PaymentIntent {
		return &model.PaymentIntent{
			InvoiceID: id, UserID: "42", TariffID: "tariff_1h",
			Amount: decimal.RequireFromString("2999.00"), Duration: time.Hour,
			Label: "1 hour", CreatedAt: at, Status: model.PaymentStatusPending,
		}
	}

	t.Run("should create, find and consume once", func(t *testing.T) {
		cleanup(t)
		if err := repo.Create(ctx, newIntent(1001, created)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Create(ctx, newIntent(1001, created)); err != domain.ErrAlreadyExists {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		found, err := repo.FindByInvoiceID(ctx, 1001)
		if err != nil {
			t.Fatalf("FindByInvoiceID failed: %v", err)
		}
		if found.Amount.StringFixed(2) != "2999.00" || found.Duration != time.Hour || !found.CreatedAt.Equal(created) {
			t.Fatalf("unexpected intent: %+v", found)
		}
		if _, err := repo.Consume(ctx, 1001); err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
		if _, err := repo.Consume(ctx, 1001); err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound on second consume, got %v", err)
		}
	})

	t.Run("should let one of many concurrent consumers win", func(t *testing.T) {
		cleanup(t)
		if err := repo.Create(ctx, newIntent(7, created)); err != nil {
			t.Fatal(err)
		}
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Consume(ctx, 7); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected one winner, got %d", wins)
		}
	})

	t.Run("should prune stale intents", func(t *testing.T) {
		cleanup(t)
		_ = repo.Create(ctx, newIntent(1, created))
		_ = repo.Create(ctx, newIntent(2, created.Add(2*time.Hour)))
		n, err := repo.DeleteCreatedBefore(ctx, created.Add(time.Hour))
		if err != nil || n != 1 {
			t.Fatalf("expected 1 pruned, got %d (%v)", n, err)
		}
	})
}

func TestLedgerRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewLedgerRepo(testPool)
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.Last(ctx, "42"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for i, id := range []string{"01A", "01B"} {
		rec := &model.PaymentRecord{
			ID: id, UserID: "42", InvoiceID: int64(1000 + i), Amount: decimal.RequireFromString("4999.00"),
			Method: model.PaymentMethodGateway, Duration: 24 * time.Hour, Label: "24 hours", ConfirmedAt: at.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	last, err := repo.Last(ctx, "42")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last.ID != "01B" || last.Duration != 24*time.Hour {
		t.Fatalf("unexpected last record: %+v", last)
	}
	all, err := repo.ListByUser(ctx, "42")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 records, got %d (%v)", len(all), err)
	}
}
