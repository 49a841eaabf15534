package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sink is a named destination of a MultiLogger
type Sink struct {
	Name   string
	Logger Logger
}

// ErrorHandler receives write failures of a sink
type ErrorHandler func(sink string, event *AuditEvent, err error)

// MultiLogger fans each event out to several sinks. In async mode Log never
// blocks on a sink and never returns a sink error; failures go to the error handler.
type MultiLogger struct {
	sinks   []Sink
	async   bool
	timeout time.Duration
	onError ErrorHandler

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewMultiLogger creates an async multi-logger
func NewMultiLogger(sinks ...Sink) *MultiLogger {
	return &MultiLogger{
		sinks:   sinks,
		async:   true,
		timeout: 5 * time.Second,
		onError: func(string, *AuditEvent, error) {},
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// SetTimeout bounds each async sink write
func (m *MultiLogger) SetTimeout(d time.Duration) {
	m.timeout = d
}

// OnError installs the handler for sink failures
func (m *MultiLogger) OnError(fn ErrorHandler) {
	m.onError = fn
}

// Log sends the event to every sink. Each sink receives its own copy.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("audit logger closed")
	}

	if !m.async {
		var errs []error
		for _, sink := range m.sinks {
			copied := *event
			if err := sink.Logger.Log(ctx, &copied); err != nil {
				m.onError(sink.Name, event, err)
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
			}
		}
		return errors.Join(errs...)
	}

	// the request may finish before the sinks do
	detached := context.WithoutCancel(ctx)
	for _, sink := range m.sinks {
		copied := *event
		m.wg.Add(1)
		go func(sink Sink, event *AuditEvent) {
			defer m.wg.Done()
			writeCtx, cancel := context.WithTimeout(detached, m.timeout)
			defer cancel()
			if err := sink.Logger.Log(writeCtx, event); err != nil {
				m.onError(sink.Name, event, err)
			}
		}(sink, &copied)
	}
	return nil
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
