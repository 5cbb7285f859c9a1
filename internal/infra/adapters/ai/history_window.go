package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/infra/metrics"
)

var _ adapter.HistoryWindow = (*TokenWindow)(nil)

// per-message framing tokens added by chat formats
const messageOverhead = 4

const fallbackEncoding = "cl100k_base"

// TokenWindow keeps a conversation under maxTokens by dropping the oldest
// turns after the system prompt. The newest message is always kept.
type TokenWindow struct {
	maxTokens int
	log       *zerolog.Logger

	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken

	// count is swapped in tests to avoid loading BPE ranks.
	count func(modelName, text string) int
}

func NewTokenWindow(maxTokens int, logger *zerolog.Logger) *TokenWindow {
	l := logger.With().Str("component", "TokenWindow").Logger()
	w := &TokenWindow{
		maxTokens: maxTokens,
		log:       &l,
		encs:      make(map[string]*tiktoken.Tiktoken),
	}
	w.count = w.tiktokenCount
	return w
}

func (w *TokenWindow) Fit(modelName string, messages []model.Message) []model.Message {
	if w.maxTokens <= 0 || len(messages) <= 2 {
		return messages
	}

	head := 0
	if messages[0].Role == model.RoleSystem {
		head = 1
	}
	sizes := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		sizes[i] = w.count(modelName, m.Content) + messageOverhead
		total += sizes[i]
	}

	// drop from the oldest non-system turn, never the newest message
	start := head
	for total > w.maxTokens && start < len(messages)-1 {
		total -= sizes[start]
		start++
	}
	// do not open the window on an orphaned assistant reply
	for start < len(messages)-1 && messages[start].Role == model.RoleAssistant {
		start++
	}
	dropped := start - head
	if dropped == 0 {
		return messages
	}
	metrics.AddHistoryTrimmed(modelName, dropped)
	w.log.Debug().Str("model", modelName).Int("dropped", dropped).Int("tokens", total).Msg("history trimmed")

	out := make([]model.Message, 0, len(messages)-dropped)
	out = append(out, messages[:head]...)
	return append(out, messages[start:]...)
}

func (w *TokenWindow) tiktokenCount(modelName, text string) int {
	enc := w.encoding(modelName)
	if enc == nil {
		// rough estimate when no BPE ranks are available
		return utf8.RuneCountInString(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

func (w *TokenWindow) encoding(modelName string) *tiktoken.Tiktoken {
	w.mu.Lock()
	defer w.mu.Unlock()
	if enc, ok := w.encs[modelName]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		w.log.Warn().Err(err).Str("model", modelName).Msg("tokenizer unavailable, estimating")
		enc = nil
	}
	w.encs[modelName] = enc
	return enc
}
