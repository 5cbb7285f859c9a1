package redis

import (
	"context"
	"encoding/json"
	"time"

	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages user bot-flow state in Redis.
type StateRepo struct {
	client *Client
	ttl    time.Duration
}

func NewStateRepo(client *Client) *StateRepo {
	return &StateRepo{
		client: client,
		ttl:    15 * time.Minute, // Give users 15 minutes to complete any conversational flow.
	}
}

func (s *StateRepo) stateKey(userID string) string {
	return "conv_state:" + userID
}

func (s *StateRepo) SetState(ctx context.Context, userID string, state *repository.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(userID), data, s.ttl)
}

func (s *StateRepo) GetState(ctx context.Context, userID string) (*repository.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(userID))
	if err != nil {
		return nil, err
	}

	var state repository.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.stateKey(userID))
}
