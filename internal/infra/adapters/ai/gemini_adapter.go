// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, modelName string, messages []model.Message) (string, adapter.Usage, error) {
	system, contents := splitSystem(messages)
	if len(contents) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	if contents[len(contents)-1].Role != string(genai.RoleUser) {
		return "", adapter.Usage{}, errors.New("gemini: last message must be from user")
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	resp, err := g.client.Models.GenerateContent(ctx, modelOrDefault(modelName, g.defaultModel), contents, cfg)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("gemini: %w", err)
	}

	text := ""
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil {
				b.WriteString(p.Text)
			}
		}
		text = b.String()
	}
	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if text == "" {
		return "", u, errors.New("gemini: empty candidate")
	}
	return text, u, nil
}

// splitSystem moves system turns into a single system instruction; Gemini
// history only knows user and model roles.
func splitSystem(msgs []model.Message) (*genai.Content, []*genai.Content) {
	var sys []*genai.Part
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			sys = append(sys, &genai.Part{Text: m.Content})
			continue
		case model.RoleAssistant:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(sys) == 0 {
		return nil, out
	}
	return &genai.Content{Parts: sys}, out
}

func modelOrDefault(modelName, def string) string {
	if strings.TrimSpace(modelName) != "" {
		return modelName
	}
	return def
}
