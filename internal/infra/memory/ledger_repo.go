package memory

import (
	"context"
	"sync"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*LedgerRepo)(nil)

// userLedger guards one user's history so writers for different users never
// contend.
type userLedger struct {
	mu      sync.RWMutex
	records []model.PaymentRecord
}

type LedgerRepo struct {
	users sync.Map // userID -> *userLedger
}

func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{}
}

func (r *LedgerRepo) user(userID string) *userLedger {
	v, _ := r.users.LoadOrStore(userID, &userLedger{})
	return v.(*userLedger)
}

func (r *LedgerRepo) Append(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil || rec.UserID == "" {
		return domain.ErrInvalidArgument
	}
	ul := r.user(rec.UserID)
	ul.mu.Lock()
	defer ul.mu.Unlock()
	ul.records = append(ul.records, *rec)
	return nil
}

func (r *LedgerRepo) Last(ctx context.Context, userID string) (*model.PaymentRecord, error) {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	ul := v.(*userLedger)
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	if len(ul.records) == 0 {
		return nil, domain.ErrNotFound
	}
	rec := ul.records[len(ul.records)-1]
	return &rec, nil
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID string) ([]*model.PaymentRecord, error) {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil, nil
	}
	ul := v.(*userLedger)
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	out := make([]*model.PaymentRecord, 0, len(ul.records))
	for i := range ul.records {
		rec := ul.records[i]
		out = append(out, &rec)
	}
	return out, nil
}
