package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions API.
// Any OpenAI-compatible endpoint works through baseURL.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, baseURL, defaultModel string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIAdapter{
		client: openai.NewClient(reqOpts...),
		model:  defaultModel,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, modelName string, messages []model.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(modelName, o.model)),
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("openai: %w", err)
	}

	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("openai: no choice content")
}

func toOpenAIMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
