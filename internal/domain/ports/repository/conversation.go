package repository

import (
	"context"

	"telegram-ai-consult/internal/domain/model"
)

// ConversationRepository stores per-user chat history. Get returns
// domain.ErrNotFound for users without a stored conversation.
type ConversationRepository interface {
	Get(ctx context.Context, userID string) (*model.Conversation, error)
	Save(ctx context.Context, c *model.Conversation) error
	Delete(ctx context.Context, userID string) error
}

// ConversationState holds the user's progress in any multi-step bot flow.
type ConversationState struct {
	Step string            `json:"step"` // e.g., "awaiting_promo"
	Data map[string]string `json:"data"` // e.g., tariff_id chosen before the step
}

// StateRepository is the port for managing any user's flow state.
type StateRepository interface {
	SetState(ctx context.Context, userID string, state *ConversationState) error
	GetState(ctx context.Context, userID string) (*ConversationState, error)
	ClearState(ctx context.Context, userID string) error
}
