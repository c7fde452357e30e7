// Package workpool runs CPU-bound work on a fixed set of workers behind
// a bounded queue. Submissions never block: a saturated queue rejects
// immediately and callers surface that as server-busy.
package workpool

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull reports a saturated submission queue.
var ErrQueueFull = errors.New("worker queue is full")

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Pool is a bounded worker pool for CPU-bound extraction work.
type Pool struct {
	queue    chan task
	workers  int
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// New builds the pool with the given worker and queue bounds.
func New(workers, queueSize int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &Pool{
		queue:   make(chan task, queueSize),
		workers: workers,
		log:     log.With().Str("component", "work-pool").Logger(),
		stop:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	p.log.Info().Int("workers", workers).Int("queue", queueSize).Msg("worker pool started")

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.queue:
			if err := t.ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			t.done <- t.fn(t.ctx)
		}
	}
}

// Run submits fn and waits for its result. A full queue fails fast with
// ErrQueueFull; a cancelled ctx releases the caller even while queued.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case p.queue <- t:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the workers after in-flight tasks finish.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}
