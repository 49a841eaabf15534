package notify

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/campus/pkg/async"
	"github.com/platinummonkey/campus/pkg/observability"
)

// AsyncConfig sizes the dispatch pool
type AsyncConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Async delivers notifications in the background. Notify never blocks on the
// underlying notifier and never returns its errors; notifications that fail or
// do not fit in the queue are logged and counted as dropped.
type Async struct {
	next    Notifier
	pool    *async.WorkerPool
	logger  *observability.Logger
	dropped prometheus.Counter
}

// NewAsync wraps next. dropped may be nil.
func NewAsync(next Notifier, cfg AsyncConfig, logger *observability.Logger, dropped prometheus.Counter) *Async {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	a := &Async{next: next, logger: logger.WithField("component", "notify"), dropped: dropped}
	a.pool = async.NewWorkerPool(context.Background(), cfg.Workers, cfg.QueueSize, "notification", cfg.Timeout,
		func(_ string, err error) { a.drop(err, "Failed to deliver notification") })
	return a
}

// Notify queues n and returns immediately
func (a *Async) Notify(ctx context.Context, n *Notification) error {
	prepare(n)
	copied := *n
	err := a.pool.TrySubmit(func(taskCtx context.Context) error {
		return a.next.Notify(taskCtx, &copied)
	})
	if errors.Is(err, async.ErrQueueFull) || errors.Is(err, async.ErrPoolClosed) {
		a.drop(err, "Notification dropped")
	}
	return nil
}

// Close waits up to timeout for queued notifications
func (a *Async) Close(timeout time.Duration) error {
	return a.pool.Shutdown(timeout)
}

func (a *Async) drop(err error, msg string) {
	if a.dropped != nil {
		a.dropped.Inc()
	}
	a.logger.WithError(err).Warn(msg)
}
