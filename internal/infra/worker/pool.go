package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Submit never blocks;
// a saturated queue rejects the task.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, queue), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

// drain runs whatever was queued before Stop.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("worker", id).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task error")
	}
}

// Stop rejects new tasks, runs the queued ones and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
}

// Run starts the workers and stops them once ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	p.Start(context.WithoutCancel(ctx))
	<-ctx.Done()
	p.Stop()
	return ctx.Err()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
