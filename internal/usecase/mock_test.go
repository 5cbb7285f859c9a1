//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/infra/memory"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t.UTC()} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqIDs hands out invoice ids starting at next.
type SeqIDs struct {
	mu   sync.Mutex
	next int64
	Err  error
}

func (s *SeqIDs) NextInvoiceID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	id := s.next
	s.next++
	return id, nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	CheckoutURLFunc    func(invoiceID int64, amount decimal.Decimal, description string) (string, error)
	VerifyCallbackFunc func(outSum string, invoiceID int64, signature string) bool
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) CheckoutURL(invoiceID int64, amount decimal.Decimal, description string) (string, error) {
	if m.CheckoutURLFunc != nil {
		return m.CheckoutURLFunc(invoiceID, amount, description)
	}
	return "https://pay.example/checkout", nil
}

func (m *MockPaymentGateway) VerifyCallback(outSum string, invoiceID int64, signature string) bool {
	if m.VerifyCallbackFunc != nil {
		return m.VerifyCallbackFunc(outSum, invoiceID, signature)
	}
	return signature == "valid"
}

// ---- Mock AI ----

type MockAI struct {
	mu    sync.Mutex
	Calls [][]model.Message

	ChatWithUsageFunc func(ctx context.Context, modelName string, msgs []model.Message) (string, adapter.Usage, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) Name() string { return "mock" }

func (m *MockAI) ChatWithUsage(ctx context.Context, modelName string, msgs []model.Message) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]model.Message(nil), msgs...))
	m.mu.Unlock()
	if m.ChatWithUsageFunc != nil {
		return m.ChatWithUsageFunc(ctx, modelName, msgs)
	}
	return "reply to: " + msgs[len(msgs)-1].Content, adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

// =============================
// Repositories
// =============================

// ---- Mock LedgerRepo ----

// MockLedgerRepo delegates to the in-memory ledger unless a hook is set.
type MockLedgerRepo struct {
	*memory.LedgerRepo

	AppendFunc func(ctx context.Context, r *model.PaymentRecord) error
	LastFunc   func(ctx context.Context, userID string) (*model.PaymentRecord, error)
}

func NewMockLedgerRepo() *MockLedgerRepo {
	return &MockLedgerRepo{LedgerRepo: memory.NewLedgerRepo()}
}

func (r *MockLedgerRepo) Append(ctx context.Context, rec *model.PaymentRecord) error {
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, rec)
	}
	return r.LedgerRepo.Append(ctx, rec)
}

func (r *MockLedgerRepo) Last(ctx context.Context, userID string) (*model.PaymentRecord, error) {
	if r.LastFunc != nil {
		return r.LastFunc(ctx, userID)
	}
	return r.LedgerRepo.Last(ctx, userID)
}

// ---- Mock PendingRepo ----

type MockPendingRepo struct {
	*memory.PendingRepo

	CreateFunc  func(ctx context.Context, p *model.PaymentIntent) error
	ConsumeFunc func(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error)
}

func NewMockPendingRepo() *MockPendingRepo {
	return &MockPendingRepo{PendingRepo: memory.NewPendingRepo()}
}

func (r *MockPendingRepo) Create(ctx context.Context, p *model.PaymentIntent) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, p)
	}
	return r.PendingRepo.Create(ctx, p)
}

func (r *MockPendingRepo) Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	if r.ConsumeFunc != nil {
		return r.ConsumeFunc(ctx, invoiceID)
	}
	return r.PendingRepo.Consume(ctx, invoiceID)
}

// ---- Mock ConversationRepo ----

type MockConversationRepo struct {
	*memory.ConversationRepo

	SaveFunc func(ctx context.Context, c *model.Conversation) error
}

func NewMockConversationRepo() *MockConversationRepo {
	return &MockConversationRepo{ConversationRepo: memory.NewConversationRepo()}
}

func (r *MockConversationRepo) Save(ctx context.Context, c *model.Conversation) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, c)
	}
	return r.ConversationRepo.Save(ctx, c)
}

// ---- Static gate ----

type staticGate bool

func (g staticGate) CanConverse(ctx context.Context, userID string) bool { return bool(g) }
