package ai

import (
	"context"
	"fmt"
	"time"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally without calling any provider. Used for dev
// runs and smoke tests of the payment flow.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, _ string, messages []model.Message) (string, adapter.Usage, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	last := ""
	if n := len(messages); n > 0 {
		last = messages[n-1].Content
	}
	reply := fmt.Sprintf("(noop) %d messages in context, last: %s", len(messages), last)
	return reply, adapter.Usage{TotalTokens: len(messages)}, nil
}
