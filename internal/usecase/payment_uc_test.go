//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/infra/adapters/payment"
	"telegram-ai-consult/internal/infra/memory"
	"telegram-ai-consult/internal/usecase"
)

const (
	testMerchant  = "demo-shop"
	testSecretOut = "out-secret"
	testSecretIn  = "in-secret"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// paymentUCTestDeps holds the collaborators of one payment use case under test.
type paymentUCTestDeps struct {
	catalog *usecase.TariffCatalog
	pending *MockPendingRepo
	ledger  *MockLedgerRepo
	gateway *payment.RobokassaGateway
	ids     *SeqIDs
	clock   *FakeClock
	opts    usecase.PaymentOptions
}

func newPaymentUCDeps(t *testing.T) *paymentUCTestDeps {
	t.Helper()
	catalog, err := usecase.NewTariffCatalog(usecase.DefaultTariffs())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	gw, err := payment.NewRobokassaGateway(testMerchant, testSecretOut, testSecretIn, "", false)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	clk := NewFakeClock(testStart)
	return &paymentUCTestDeps{
		catalog: catalog,
		pending: NewMockPendingRepo(),
		ledger:  NewMockLedgerRepo(),
		gateway: gw,
		ids:     &SeqIDs{next: 1001},
		clock:   clk,
		opts:    usecase.PaymentOptions{PromoCodes: []string{"TEST2024"}, Clock: clk},
	}
}

func (d *paymentUCTestDeps) build() usecase.PaymentUseCase {
	return usecase.NewPaymentUseCase(d.catalog, d.pending, d.ledger, memory.NewKeyedLocker(), d.gateway, d.ids, d.opts, newTestLogger())
}

// validNotice builds the callback the gateway would send for invoiceID.
func validNotice(invoiceID int64, outSum string) model.CallbackNotice {
	return model.CallbackNotice{
		InvoiceID: invoiceID,
		OutSum:    outSum,
		Signature: payment.CallbackSignature(outSum, invoiceID, testSecretIn),
	}
}

func TestPaymentUseCase_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending intent and a signed redirect", func(t *testing.T) {
		// --- Arrange ---
		deps := newPaymentUCDeps(t)
		uc := deps.build()

		// --- Act ---
		payURL, invoiceID, err := uc.Checkout(ctx, "user-1", "tariff_1h")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if invoiceID != 1001 {
			t.Errorf("expected invoice 1001, got %d", invoiceID)
		}
		u, err := url.Parse(payURL)
		if err != nil {
			t.Fatalf("redirect is not a url: %v", err)
		}
		q := u.Query()
		if q.Get("OutSum") != "2999.00" || q.Get("InvId") != "1001" || q.Get("MerchantLogin") != testMerchant {
			t.Errorf("unexpected redirect query: %v", q)
		}
		want := payment.Sign(testMerchant, decimal.RequireFromString("2999.00"), 1001, testSecretOut)
		if q.Get("SignatureValue") != want {
			t.Errorf("expected signature %s, got %s", want, q.Get("SignatureValue"))
		}

		intent, err := deps.pending.FindByInvoiceID(ctx, 1001)
		if err != nil {
			t.Fatalf("expected a stored intent: %v", err)
		}
		if intent.UserID != "user-1" || intent.Status != model.PaymentStatusPending || intent.Duration != time.Hour {
			t.Errorf("unexpected intent: %+v", intent)
		}
	})

	t.Run("should reject an unknown tariff without storing anything", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()

		_, _, err := uc.Checkout(ctx, "user-1", "tariff_forever")

		if !errors.Is(err, domain.ErrInvalidTariff) {
			t.Fatalf("expected ErrInvalidTariff, got %v", err)
		}
		if _, err := deps.pending.FindByInvoiceID(ctx, 1001); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected no intent, got %v", err)
		}
	})

	t.Run("should fail hard on an invoice id collision", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		if _, _, err := uc.Checkout(ctx, "user-1", "tariff_1h"); err != nil {
			t.Fatal(err)
		}
		deps.ids.next = 1001

		_, _, err := uc.Checkout(ctx, "user-2", "tariff_24h")

		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		intent, _ := deps.pending.FindByInvoiceID(ctx, 1001)
		if intent.UserID != "user-1" {
			t.Error("collision must not overwrite the existing intent")
		}
	})

	t.Run("should reject an empty user id", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		if _, _, err := uc.Checkout(ctx, " ", "tariff_1h"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaymentUseCase_ConfirmCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("should confirm once and treat the replay as unknown", func(t *testing.T) {
		// --- Arrange ---
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_1h")

		// --- Act ---
		rec, err := uc.ConfirmCallback(ctx, validNotice(id, "2999.00"))
		_, replayErr := uc.ConfirmCallback(ctx, validNotice(id, "2999.00"))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if rec.Method != model.PaymentMethodGateway || rec.InvoiceID != id || rec.UserID != "user-1" {
			t.Errorf("unexpected record: %+v", rec)
		}
		if !errors.Is(replayErr, domain.ErrUnknownInvoice) {
			t.Errorf("expected replay to be ErrUnknownInvoice, got %v", replayErr)
		}
		all, _ := deps.ledger.ListByUser(ctx, "user-1")
		if len(all) != 1 {
			t.Errorf("expected exactly one ledger record, got %d", len(all))
		}
	})

	t.Run("should leave the intent intact on a forged signature", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_1h")

		forged := model.CallbackNotice{InvoiceID: id, OutSum: "2999.00", Signature: payment.CallbackSignature("2999.00", id, "guessed")}
		_, err := uc.ConfirmCallback(ctx, forged)

		if !errors.Is(err, domain.ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
		if _, err := deps.pending.FindByInvoiceID(ctx, id); err != nil {
			t.Fatalf("forged callback must not consume the intent: %v", err)
		}
		if _, err := uc.ConfirmCallback(ctx, validNotice(id, "2999.00")); err != nil {
			t.Errorf("later valid callback should succeed, got %v", err)
		}
	})

	t.Run("should consume the intent but record nothing on amount mismatch", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_1h")

		_, err := uc.ConfirmCallback(ctx, validNotice(id, "1.00"))

		if !errors.Is(err, domain.ErrAmountMismatch) {
			t.Fatalf("expected ErrAmountMismatch, got %v", err)
		}
		if _, err := deps.pending.FindByInvoiceID(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("tampered intent should be consumed, got %v", err)
		}
		if ok, _ := uc.IsEntitled(ctx, "user-1"); ok {
			t.Error("tampered payment must not entitle")
		}
	})

	t.Run("should accept an amount within tolerance and extra precision", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_1h")

		if _, err := uc.ConfirmCallback(ctx, validNotice(id, "2999.000000")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("should reject an invoice that was never issued", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		if _, err := uc.ConfirmCallback(ctx, validNotice(424242, "2999.00")); !errors.Is(err, domain.ErrUnknownInvoice) {
			t.Fatalf("expected ErrUnknownInvoice, got %v", err)
		}
	})

	t.Run("should reject malformed notices", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		cases := []model.CallbackNotice{
			{InvoiceID: 0, OutSum: "1.00", Signature: "x"},
			{InvoiceID: 1, OutSum: "abc", Signature: "x"},
			{InvoiceID: 1, OutSum: "1.00", Signature: ""},
		}
		for _, n := range cases {
			if _, err := uc.ConfirmCallback(ctx, n); !errors.Is(err, domain.ErrMalformedNotice) {
				t.Errorf("notice %+v: expected ErrMalformedNotice, got %v", n, err)
			}
		}
	})

	t.Run("should restore the intent when the ledger append fails", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_1h")
		deps.ledger.AppendFunc = func(ctx context.Context, r *model.PaymentRecord) error {
			return domain.ErrStorage
		}

		_, err := uc.ConfirmCallback(ctx, validNotice(id, "2999.00"))

		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
		if usecase.RejectReason(err) != "storage" {
			t.Errorf("expected storage reason, got %q", usecase.RejectReason(err))
		}
		if _, err := deps.pending.FindByInvoiceID(ctx, id); err != nil {
			t.Fatalf("intent should be back in the store: %v", err)
		}

		deps.ledger.AppendFunc = nil
		if _, err := uc.ConfirmCallback(ctx, validNotice(id, "2999.00")); err != nil {
			t.Errorf("gateway retry should succeed, got %v", err)
		}
	})

	t.Run("should record exactly once under concurrent duplicates", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		_, id, _ := uc.Checkout(ctx, "user-1", "tariff_24h")

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := uc.ConfirmCallback(ctx, validNotice(id, "4999.00")); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected one successful confirmation, got %d", wins)
		}
		all, _ := deps.ledger.ListByUser(ctx, "user-1")
		if len(all) != 1 {
			t.Errorf("expected one ledger record, got %d", len(all))
		}
	})
}

func TestPaymentUseCase_Entitlement(t *testing.T) {
	ctx := context.Background()

	t.Run("should expire exactly at the tariff duration", func(t *testing.T) {
		for _, tariff := range usecase.DefaultTariffs() {
			tariff := tariff
			t.Run(tariff.ID, func(t *testing.T) {
				deps := newPaymentUCDeps(t)
				uc := deps.build()
				_, id, _ := uc.Checkout(ctx, "user-1", tariff.ID)
				if _, err := uc.ConfirmCallback(ctx, validNotice(id, tariff.Price.StringFixed(2))); err != nil {
					t.Fatal(err)
				}

				deps.clock.Advance(tariff.Duration - time.Second)
				if ok, _ := uc.IsEntitled(ctx, "user-1"); !ok {
					t.Error("expected entitlement one second before expiry")
				}
				deps.clock.Advance(2 * time.Second)
				if ok, _ := uc.IsEntitled(ctx, "user-1"); ok {
					t.Error("expected no entitlement one second after expiry")
				}
			})
		}
	})

	t.Run("should let the latest record win", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		if _, err := uc.RedeemPromo(ctx, "user-1", "tariff_7d", "TEST2024"); err != nil {
			t.Fatal(err)
		}
		deps.clock.Advance(time.Minute)
		if _, err := uc.RedeemPromo(ctx, "user-1", "tariff_1h", "TEST2024"); err != nil {
			t.Fatal(err)
		}
		deps.clock.Advance(time.Hour)

		e, err := uc.Entitlement(ctx, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if e.Active {
			t.Error("a newer 1h purchase replaces the older 7d one")
		}
	})

	t.Run("should report no entitlement for an unknown user", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		ok, err := uc.IsEntitled(ctx, "nobody")
		if err != nil || ok {
			t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
		}
	})

	t.Run("should surface ledger failures", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		deps.ledger.LastFunc = func(ctx context.Context, userID string) (*model.PaymentRecord, error) {
			return nil, domain.ErrStorage
		}
		uc := deps.build()
		if _, err := uc.IsEntitled(ctx, "user-1"); !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
	})
}

func TestPaymentUseCase_EndToEnd(t *testing.T) {
	ctx := context.Background()
	deps := newPaymentUCDeps(t)
	uc := deps.build()

	if ok, _ := uc.IsEntitled(ctx, "42"); ok {
		t.Fatal("fresh user should not be entitled")
	}
	payURL, id, err := uc.Checkout(ctx, "42", "tariff_1h")
	if err != nil {
		t.Fatal(err)
	}
	if id != 1001 {
		t.Fatalf("expected invoice 1001, got %d", id)
	}
	u, _ := url.Parse(payURL)
	if u.Query().Get("InvId") != strconv.FormatInt(id, 10) {
		t.Fatalf("redirect carries wrong invoice: %s", payURL)
	}

	if _, err := uc.ConfirmCallback(ctx, validNotice(1001, "2999.00")); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok, _ := uc.IsEntitled(ctx, "42"); !ok {
		t.Fatal("expected entitlement right after payment")
	}

	deps.clock.Advance(3601 * time.Second)
	if ok, _ := uc.IsEntitled(ctx, "42"); ok {
		t.Fatal("expected entitlement to lapse after one hour")
	}
}

func TestPaymentUseCase_RedeemPromo(t *testing.T) {
	ctx := context.Background()

	t.Run("should grant the tariff for a known code", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		rec, err := uc.RedeemPromo(ctx, "user-1", "tariff_1h", "TEST2024")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Method != model.PaymentMethodPromo || rec.InvoiceID != 0 {
			t.Errorf("unexpected record: %+v", rec)
		}
		if ok, _ := uc.IsEntitled(ctx, "user-1"); !ok {
			t.Error("expected entitlement after promo")
		}
	})

	t.Run("should reject an unknown code", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		uc := deps.build()
		if _, err := uc.RedeemPromo(ctx, "user-1", "tariff_1h", "WRONG"); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
		if _, err := deps.ledger.Last(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("rejected promo must not touch the ledger")
		}
	})

	t.Run("should reject every code when none are configured", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		deps.opts.PromoCodes = nil
		uc := deps.build()
		if _, err := uc.RedeemPromo(ctx, "user-1", "tariff_1h", ""); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
	})
}

func TestPaymentUseCase_SimulateCard(t *testing.T) {
	ctx := context.Background()

	t.Run("should be disabled by default", func(t *testing.T) {
		uc := newPaymentUCDeps(t).build()
		if _, err := uc.SimulateCard(ctx, "user-1", "tariff_1h"); !errors.Is(err, domain.ErrMethodDisabled) {
			t.Fatalf("expected ErrMethodDisabled, got %v", err)
		}
	})

	t.Run("should record a card payment when enabled", func(t *testing.T) {
		deps := newPaymentUCDeps(t)
		deps.opts.SimulatedCard = true
		uc := deps.build()
		rec, err := uc.SimulateCard(ctx, "user-1", "tariff_24h")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Method != model.PaymentMethodCard || rec.Duration != 24*time.Hour {
			t.Errorf("unexpected record: %+v", rec)
		}
	})
}

func TestPaymentUseCase_PruneStale(t *testing.T) {
	ctx := context.Background()
	deps := newPaymentUCDeps(t)
	uc := deps.build()

	_, oldID, _ := uc.Checkout(ctx, "user-1", "tariff_1h")
	deps.clock.Advance(2 * time.Hour)
	_, freshID, _ := uc.Checkout(ctx, "user-1", "tariff_1h")

	n, err := uc.PruneStale(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected one pruned intent, got %d", n)
	}
	if _, err := deps.pending.FindByInvoiceID(ctx, oldID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("stale intent should be gone")
	}
	if _, err := deps.pending.FindByInvoiceID(ctx, freshID); err != nil {
		t.Error("fresh intent should survive")
	}
	if _, err := uc.PruneStale(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRejectReason(t *testing.T) {
	cases := map[error]string{
		domain.ErrMalformedNotice: "malformed",
		domain.ErrBadSignature:    "bad_signature",
		domain.ErrUnknownInvoice:  "unknown_invoice",
		domain.ErrAmountMismatch:  "amount_mismatch",
		errors.New("boom"):        "storage",
	}
	for err, want := range cases {
		if got := usecase.RejectReason(err); got != want {
			t.Errorf("RejectReason(%v) = %q, want %q", err, got, want)
		}
	}
}
