package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/campus/pkg/observability"
)

// ErrQueueFull is returned by TrySubmit when every queue slot is taken
var ErrQueueFull = errors.New("worker pool queue full")

// ErrPoolClosed is returned when submitting to a pool that has been shut down
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo runs fn in a goroutine that outlives the caller's request.
// The task keeps the values of parentCtx but not its cancellation, is bounded
// by timeout, and panics and errors are logged instead of crashing the process.
//
// Example:
//
//	async.SafeGo(r.Context(), 5*time.Second, "welcome email", func(ctx context.Context) error {
//		return mailer.Send(ctx, msg)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	detached := context.WithoutCancel(parentCtx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		logger := observability.FromContext(detached).WithField("task", taskName)
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("stack", string(debug.Stack())).Errorf("Panic in background task: %v", r)
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// ErrorHandler receives task failures of a worker pool
type ErrorHandler func(taskName string, err error)

// WorkerPool runs submitted tasks on a fixed number of workers with a bounded queue
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	onError  ErrorHandler

	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines reading from a queue of queueSize tasks.
// onError may be nil.
//
//	pool := async.NewWorkerPool(ctx, 4, 256, "notifications", 5*time.Second, nil)
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, workers, queueSize int, taskName string, timeout time.Duration, onError ErrorHandler) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if onError == nil {
		logger := observability.FromContext(ctx)
		onError = func(task string, err error) {
			logger.WithError(err).WithField("task", task).Warn("Background task failed")
		}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		onError:  onError,
		workCh:   make(chan func(context.Context) error, queueSize),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// TrySubmit queues fn without blocking
func (p *WorkerPool) TrySubmit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits up to timeout for the queue to drain
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.workCh)
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		p.run(fn)
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.onError(p.taskName, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.onError(p.taskName, err)
	}
}
