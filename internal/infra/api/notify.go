package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain/model"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/infra/metrics"
	"telegram-ai-consult/internal/infra/worker"
)

// Submitter queues a task without blocking.
type Submitter interface {
	Submit(task worker.Task) error
}

// AsyncNotifier hands confirmations to a worker pool so the gateway response
// never waits on Telegram.
type AsyncNotifier struct {
	pool    Submitter
	next    Notifier
	timeout time.Duration
	log     *zerolog.Logger
}

var _ Notifier = (*AsyncNotifier)(nil)

func NewAsyncNotifier(pool Submitter, next Notifier, timeout time.Duration, logger *zerolog.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	l := logger.With().Str("component", "AsyncNotifier").Logger()
	return &AsyncNotifier{pool: pool, next: next, timeout: timeout, log: &l}
}

func (n *AsyncNotifier) NotifyPaymentConfirmed(ctx context.Context, rec *model.PaymentRecord) {
	traceCtx := context.WithoutCancel(ctx)
	err := n.pool.Submit(func(workerCtx context.Context) error {
		c, cancel := context.WithTimeout(traceCtx, n.timeout)
		defer cancel()
		n.next.NotifyPaymentConfirmed(c, rec)
		return nil
	})
	if err != nil {
		// the ledger already has the record; the user sees it on /status
		metrics.IncNotification("dropped")
		logging.With(ctx, n.log).Warn().Err(err).Str("user_id", rec.UserID).Msg("payment notification dropped")
		return
	}
	metrics.IncNotification("queued")
}
