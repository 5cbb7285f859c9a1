// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain"
	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/domain/ports/repository"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// Send forwards one user turn to the assistant and returns its reply.
	// It fails with domain.ErrNoActiveEntitlement when the gate denies.
	Send(ctx context.Context, userID, text string) (reply string, err error)
	// Reset truncates the user's conversation back to the system prompt.
	Reset(ctx context.Context, userID string) error
}

// Gate is what chat needs from the ConversationGate.
type Gate interface {
	CanConverse(ctx context.Context, userID string) bool
}

type chatUC struct {
	conversations repository.ConversationRepository
	ai            adapter.AIServiceAdapter
	window        adapter.HistoryWindow
	gate          Gate
	locker        repository.Locker
	systemPrompt  string
	model         string
	log           *zerolog.Logger
}

func NewChatUseCase(
	conversations repository.ConversationRepository,
	ai adapter.AIServiceAdapter,
	window adapter.HistoryWindow,
	gate Gate,
	locker repository.Locker,
	systemPrompt, modelName string,
	logger *zerolog.Logger,
) *chatUC {
	l := logger.With().Str("component", "ChatUseCase").Logger()
	return &chatUC{
		conversations: conversations,
		ai:            ai,
		window:        window,
		gate:          gate,
		locker:        locker,
		systemPrompt:  systemPrompt,
		model:         modelName,
		log:           &l,
	}
}

func (c *chatUC) Send(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyMessage
	}
	if !c.gate.CanConverse(ctx, userID) {
		return "", domain.ErrNoActiveEntitlement
	}

	// one turn at a time per user so user/assistant pairs never interleave
	unlock, err := c.locker.Lock(ctx, conversationLockKey(userID))
	if err != nil {
		return "", err
	}
	defer unlock()

	conv, err := c.load(ctx, userID)
	if err != nil {
		return "", err
	}
	conv.Append(model.RoleUser, text)

	msgs := conv.Messages
	if c.window != nil {
		msgs = c.window.Fit(c.model, msgs)
	}

	reply, usage, err := c.ai.ChatWithUsage(ctx, c.model, msgs)
	if err != nil {
		// the user turn is dropped with the failed call
		c.log.Error().Err(err).Str("user_id", userID).Str("provider", c.ai.Name()).Msg("ai call failed")
		return "", err
	}
	conv.Append(model.RoleAssistant, reply)

	if err := c.conversations.Save(ctx, conv); err != nil {
		return "", err
	}
	c.log.Debug().
		Str("user_id", userID).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("history_len", len(conv.Messages)).
		Msg("chat turn completed")
	return reply, nil
}

func (c *chatUC) Reset(ctx context.Context, userID string) error {
	unlock, err := c.locker.Lock(ctx, conversationLockKey(userID))
	if err != nil {
		return err
	}
	defer unlock()
	return c.conversations.Save(ctx, model.NewConversation(userID, c.systemPrompt))
}

func (c *chatUC) load(ctx context.Context, userID string) (*model.Conversation, error) {
	conv, err := c.conversations.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.NewConversation(userID, c.systemPrompt), nil
		}
		return nil, err
	}
	return conv, nil
}

func conversationLockKey(userID string) string { return "conversation:" + userID }
