package memory

import (
	"context"
	"sync"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var (
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
	_ repository.StateRepository        = (*StateRepo)(nil)
)

type ConversationRepo struct {
	mu    sync.RWMutex
	store map[string][]model.Message
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{store: make(map[string][]model.Message)}
}

func (r *ConversationRepo) Get(ctx context.Context, userID string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs, ok := r.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.Conversation{UserID: userID, Messages: append([]model.Message(nil), msgs...)}, nil
}

func (r *ConversationRepo) Save(ctx context.Context, c *model.Conversation) error {
	if c == nil || c.UserID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[c.UserID] = append([]model.Message(nil), c.Messages...)
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, userID)
	return nil
}

// StateRepo holds bot flow state per user.
type StateRepo struct {
	mu    sync.Mutex
	store map[string]repository.ConversationState
}

func NewStateRepo() *StateRepo {
	return &StateRepo{store: make(map[string]repository.ConversationState)}
}

func (s *StateRepo) SetState(ctx context.Context, userID string, state *repository.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := repository.ConversationState{Step: state.Step, Data: make(map[string]string, len(state.Data))}
	for k, v := range state.Data {
		cp.Data[k] = v
	}
	s.store[userID] = cp
	return nil
}

func (s *StateRepo) GetState(ctx context.Context, userID string) (*repository.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s *StateRepo) ClearState(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, userID)
	return nil
}
