// Package notify emits notifications for the email and push workers.
//
// Notifications are a side effect: a failed or slow delivery must never fail
// the request that caused it. Wrap the real notifier in Async:
//
//	notifier := notify.NewAsync(notify.NewRedisNotifier(redisClient, ""), notify.AsyncConfig{},
//		logger, metrics.NotificationsDropped)
//	defer notifier.Close(5 * time.Second)
//
// RedisNotifier publishes JSON on a pub/sub channel that the delivery workers
// subscribe to.
package notify
