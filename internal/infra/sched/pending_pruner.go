package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/infra/metrics"
)

// Pruner is the slice of PaymentUseCase the worker drives.
type Pruner interface {
	PruneStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PendingPruner periodically drops pending intents whose callback never
// arrived. A late callback for a pruned invoice is rejected as unknown.
type PendingPruner struct {
	interval time.Duration
	ttl      time.Duration
	uc       Pruner
	log      *zerolog.Logger
}

func NewPendingPruner(interval, ttl time.Duration, uc Pruner, logger *zerolog.Logger) *PendingPruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	l := logger.With().Str("component", "PendingPruner").Logger()
	return &PendingPruner{interval: interval, ttl: ttl, uc: uc, log: &l}
}

// Run prunes once right away and then every interval until ctx is done.
func (w *PendingPruner) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("ttl", w.ttl).Msg("Starting pending pruner")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping pending pruner")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PendingPruner) tick(ctx context.Context) {
	n, err := w.uc.PruneStale(ctx, w.ttl)
	if err != nil {
		w.log.Error().Err(err).Msg("pending pruner error")
		return
	}
	if n > 0 {
		metrics.AddPendingPruned(n)
		w.log.Info().Int("count", n).Msg("stale pending payments pruned")
	}
}
