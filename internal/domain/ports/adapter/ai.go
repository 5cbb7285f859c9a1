package adapter

import (
	"context"

	"telegram-ai-consult/internal/domain/model"
)

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the port for LLM chat.
type AIServiceAdapter interface {
	Name() string

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, modelName string, messages []model.Message) (string, Usage, error)
}

// HistoryWindow trims a conversation to what fits the model's prompt budget.
// The system message is always kept.
type HistoryWindow interface {
	Fit(modelName string, messages []model.Message) []model.Message
}
