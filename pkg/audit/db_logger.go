package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DBLogger writes audit events to PostgreSQL. It only ever inserts; the
// audit_events table is created by the schema migrations.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

const eventColumns = `
	id, timestamp, event_type, status,
	actor_id, actor_role, organization_id, school_id,
	action, resource_type, resource_id, reason, message,
	request_id, ip_address, user_agent, metadata, changes`

// Log appends an audit event
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}

	var metadataJSON, changesJSON []byte
	var err error
	if event.Metadata != nil {
		if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		if changesJSON, err = json.Marshal(event.Changes); err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `INSERT INTO audit_events (` + eventColumns + `) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18
	)`

	_, err = l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.ActorRole, event.OrganizationID, event.SchoolID,
		event.Action, event.ResourceType, event.ResourceID, event.Reason, event.Message,
		event.RequestID, event.IPAddress, event.UserAgent, metadataJSON, changesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns the events of filter.OrganizationID, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM audit_events` + where +
		fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args)+1)
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Get returns one event of an organization
func (l *DBLogger) Get(ctx context.Context, orgID, id uuid.UUID) (*AuditEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE organization_id = $1 AND id = $2`
	event, err := scanEvent(l.db.QueryRowContext(ctx, query, orgID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// GetStats summarizes the events of an organization
func (l *DBLogger) GetStats(ctx context.Context, orgID uuid.UUID, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}
	where, args := buildWhere(SearchFilter{OrganizationID: orgID, StartTime: startTime, EndTime: endTime})
	if startTime != nil && endTime != nil {
		stats.TimeRange = &TimeRange{Start: *startTime, End: *endTime}
	}

	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT actor_id) FROM audit_events`+where, args...,
	).Scan(&stats.TotalEvents, &stats.UniqueActors)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	if err := l.countBy(ctx, "event_type", where, args, func(key string, n int64) {
		stats.EventsByType[EventType(key)] = n
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	if err := l.countBy(ctx, "status", where, args, func(key string, n int64) {
		stats.EventsByStatus[EventStatus(key)] = n
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}
	stats.AccessDenials = stats.EventsByStatus[EventStatusDenied]
	return stats, nil
}

func (l *DBLogger) countBy(ctx context.Context, column, where string, args []interface{}, add func(string, int64)) error {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events%s GROUP BY %s", column, where, column), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

// Close is a no-op; the database connection is shared
func (l *DBLogger) Close() error {
	return nil
}

func buildWhere(filter SearchFilter) (string, []interface{}) {
	where := " WHERE organization_id = $1"
	args := []interface{}{filter.OrganizationID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if filter.StartTime != nil {
		add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add("timestamp <= $%d", *filter.EndTime)
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", *filter.ActorID)
	}
	if filter.SchoolID != nil {
		add("school_id = $%d", *filter.SchoolID)
	}
	if len(filter.EventTypes) > 0 {
		names := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			names[i] = string(et)
		}
		add("event_type = ANY($%d)", pq.Array(names))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	return where, args
}

func scanEvent(scanner interface{ Scan(...interface{}) error }) (*AuditEvent, error) {
	event := &AuditEvent{}
	var actorRole, action, resourceType, resourceID, reason, message sql.NullString
	var requestID, ipAddress, userAgent sql.NullString
	var metadataJSON, changesJSON []byte

	err := scanner.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.ActorID, &actorRole, &event.OrganizationID, &event.SchoolID,
		&action, &resourceType, &resourceID, &reason, &message,
		&requestID, &ipAddress, &userAgent, &metadataJSON, &changesJSON,
	)
	if err != nil {
		return nil, err
	}
	event.ActorRole = actorRole.String
	event.Action = action.String
	event.ResourceType = resourceType.String
	event.ResourceID = resourceID.String
	event.Reason = reason.String
	event.Message = message.String
	event.RequestID = requestID.String
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(changesJSON) > 0 {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	return event, nil
}
