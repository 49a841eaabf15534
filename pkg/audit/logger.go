package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/contextkeys"
)

// Logger is an append-only audit sink. Implementations must be safe for concurrent use.
type Logger interface {
	// Log records an event. ID and Timestamp are filled in when zero.
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return noOpLogger{}
}

// NoOp returns a logger that discards every event
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *AuditEvent) error { return nil }
func (noOpLogger) Close() error                           { return nil }

// NewEvent creates an event carrying the request metadata found in ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	event.IPAddress, event.UserAgent = contextkeys.GetClient(ctx)
	if id, err := uuid.Parse(contextkeys.GetPrincipalID(ctx)); err == nil {
		event.ActorID = &id
	}
	return event
}

// prepare fills the fields every stored event needs and rejects tenant
// events without an organization
func prepare(event *AuditEvent) error {
	if event.OrganizationID == nil && !event.EventType.PlatformScoped() {
		return fmt.Errorf("%w: %s", ErrOrganizationRequired, event.EventType)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return nil
}

// Record logs a mutation performed by the principal in ctx to the logger in ctx
func Record(ctx context.Context, eventType EventType, orgID *uuid.UUID, resourceType, resourceID string, changes *ChangeDetails) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.OrganizationID = orgID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	return FromContext(ctx).Log(ctx, event)
}
