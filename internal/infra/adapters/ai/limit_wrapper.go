package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/domain/ports/adapter"
	"telegram-ai-consult/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI bounds concurrent provider calls, applies a per-call timeout and
// records usage metrics.
type limitedAI struct {
	inner   adapter.AIServiceAdapter
	sem     chan struct{}
	timeout time.Duration
	log     *zerolog.Logger
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int, timeout time.Duration, logger *zerolog.Logger) adapter.AIServiceAdapter {
	l := logger.With().Str("component", "LimitedAI").Str("provider", inner.Name()).Logger()
	w := &limitedAI{inner: inner, timeout: timeout, log: &l}
	if maxConcurrent > 0 {
		w.sem = make(chan struct{}, maxConcurrent)
	}
	return w
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) ChatWithUsage(ctx context.Context, modelName string, messages []model.Message) (string, adapter.Usage, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return "", adapter.Usage{}, ctx.Err()
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, usage, err := l.inner.ChatWithUsage(ctx, modelName, messages)
	elapsed := time.Since(start)
	metrics.ObserveChatUsage(l.inner.Name(), modelName, usage.PromptTokens, usage.CompletionTokens, elapsed.Milliseconds(), err == nil)
	if err != nil {
		l.log.Warn().Err(err).Str("model", modelName).Dur("elapsed", elapsed).Msg("chat call failed")
		return "", usage, err
	}
	l.log.Debug().Str("model", modelName).Int("total_tokens", usage.TotalTokens).Dur("elapsed", elapsed).Msg("chat call")
	return reply, usage, nil
}
