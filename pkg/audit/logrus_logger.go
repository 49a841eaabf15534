package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes each audit event as a structured log entry
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a sink on top of logger, tagging entries with component=audit
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{entry: logger.WithField("component", "audit")}
}

// Log writes the event at info level; denials are logged at warn level
func (l *LogrusLogger) Log(_ context.Context, event *AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}

	fields := logrus.Fields{
		"audit_id":   event.ID.String(),
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"timestamp":  event.Timestamp,
	}
	if event.ActorID != nil {
		fields["actor_id"] = event.ActorID.String()
	}
	if event.ActorRole != "" {
		fields["actor_role"] = event.ActorRole
	}
	if event.OrganizationID != nil {
		fields["organization_id"] = event.OrganizationID.String()
	}
	if event.SchoolID != nil {
		fields["school_id"] = event.SchoolID.String()
	}
	if event.Action != "" {
		fields["action"] = event.Action
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	entry := l.entry.WithFields(fields)
	if event.Status == EventStatusDenied {
		entry.Warn(event.Message)
	} else {
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error {
	return nil
}
