// Package async runs work that must not hold up or fail the request that
// triggered it.
//
// SafeGo starts a single detached task with a timeout and panic recovery.
// WorkerPool bounds concurrency for a stream of tasks; TrySubmit never
// blocks, so a saturated pool sheds work instead of slowing requests down.
//
//	pool := async.NewWorkerPool(ctx, 4, 256, "notifications", 5*time.Second,
//		func(task string, err error) { dropped.Inc() })
//	if err := pool.TrySubmit(send); errors.Is(err, async.ErrQueueFull) {
//		dropped.Inc()
//	}
//
// pkg/notify dispatches workflow notifications through a WorkerPool and pkg/auth
// records login times with SafeGo.
package async
