package redis

import (
	"context"
	"encoding/json"
	"time"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

// ConversationRepo keeps chat histories with a sliding TTL; an idle
// conversation simply disappears.
type ConversationRepo struct {
	client *Client
	ttl    time.Duration
}

func NewConversationRepo(client *Client, ttl time.Duration) *ConversationRepo {
	return &ConversationRepo{
		client: client,
		ttl:    ttl,
	}
}

func conversationKey(userID string) string { return "conversation:" + userID }

func (c *ConversationRepo) Get(ctx context.Context, userID string) (*model.Conversation, error) {
	data, err := c.client.Get(ctx, conversationKey(userID))
	if err != nil {
		return nil, err
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *ConversationRepo) Save(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.UserID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, conversationKey(conv.UserID), data, c.ttl)
}

func (c *ConversationRepo) Delete(ctx context.Context, userID string) error {
	return c.client.Del(ctx, conversationKey(userID))
}
