package memory

import (
	"context"
	"sync"
	"time"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.PendingPaymentRepository = (*PendingRepo)(nil)

// PendingRepo keeps pending intents in process memory. It is not durable and
// is meant for dev mode and tests.
type PendingRepo struct {
	mu    sync.Mutex
	store map[int64]model.PaymentIntent
}

func NewPendingRepo() *PendingRepo {
	return &PendingRepo{store: make(map[int64]model.PaymentIntent)}
}

func (r *PendingRepo) Create(ctx context.Context, p *model.PaymentIntent) error {
	if p == nil || p.InvoiceID <= 0 {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[p.InvoiceID]; ok {
		return domain.ErrAlreadyExists
	}
	r.store[p.InvoiceID] = *p
	return nil
}

func (r *PendingRepo) FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *PendingRepo) Consume(ctx context.Context, invoiceID int64) (*model.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.store, invoiceID)
	return &p, nil
}

func (r *PendingRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.store {
		if p.CreatedAt.Before(cutoff) {
			delete(r.store, id)
			n++
		}
	}
	return n, nil
}
