package audit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

var eventColumnNames = []string{
	"id", "timestamp", "event_type", "status",
	"actor_id", "actor_role", "organization_id", "school_id",
	"action", "resource_type", "resource_id", "reason", "message",
	"request_id", "ip_address", "user_agent", "metadata", "changes",
}

func TestNewDBLogger(t *testing.T) {
	logger, err := NewDBLogger(nil)
	assert.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "database connection is required")

	db, _ := setupMockDB(t)
	logger, err = NewDBLogger(db)
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("fills id and timestamp", func(t *testing.T) {
		db, mock := setupMockDB(t)
		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
			WithArgs(anyArgs(18)...).
			WillReturnResult(sqlmock.NewResult(0, 1))

		orgID := uuid.New()
		event := &AuditEvent{
			EventType:      EventTypeAccessDenied,
			Status:         EventStatusDenied,
			OrganizationID: &orgID,
			Action:         "view",
			ResourceType:   "student",
			ResourceID:     "s2",
			Reason:         "outside_scope",
			Metadata:       map[string]interface{}{"route": "/students/{id}"},
		}
		require.NoError(t, logger.Log(context.Background(), event))
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.False(t, event.Timestamp.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
			WillReturnError(errors.New("connection reset"))

		err = logger.Log(context.Background(), &AuditEvent{EventType: EventTypeRoleAssign, Status: EventStatusSuccess})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit event")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_RejectsTenantEventWithoutOrganization(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	err = logger.Log(context.Background(), &AuditEvent{EventType: EventTypeAdmissionCreate, Status: EventStatusSuccess})
	assert.ErrorIs(t, err, ErrOrganizationRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	orgID, actorID, eventID := uuid.New(), uuid.New(), uuid.New()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventColumnNames).AddRow(
		eventID.String(), ts, "authz.access_denied", "denied",
		actorID.String(), "parent", orgID.String(), nil,
		"view", "student", "s2", "outside_scope", nil,
		"req-1", "10.0.0.1", "curl/8", []byte(`{"route":"/students"}`), nil,
	)
	mock.ExpectQuery(`FROM audit_events WHERE organization_id = \$1 AND actor_id = \$2 AND event_type = ANY\(\$3\) ORDER BY timestamp DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(orgID, actorID, sqlmock.AnyArg(), 50, 10).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{
		OrganizationID: orgID,
		ActorID:        &actorID,
		EventTypes:     []EventType{EventTypeAccessDenied},
		Limit:          50,
		Offset:         10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, eventID, event.ID)
	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	assert.Equal(t, EventStatusDenied, event.Status)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, actorID, *event.ActorID)
	assert.Nil(t, event.SchoolID)
	assert.Equal(t, "outside_scope", event.Reason)
	assert.Empty(t, event.Message)
	assert.Equal(t, "/students", event.Metadata["route"])
	assert.Nil(t, event.Changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_SearchDefaultLimit(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	orgID := uuid.New()

	mock.ExpectQuery(`WHERE organization_id = \$1 ORDER BY timestamp DESC LIMIT \$2$`).
		WithArgs(orgID, DefaultSearchLimit).
		WillReturnRows(sqlmock.NewRows(eventColumnNames))

	events, err := logger.Search(context.Background(), SearchFilter{OrganizationID: orgID})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	mock.ExpectQuery(`LIMIT \$2$`).
		WithArgs(orgID, MaxSearchLimit).
		WillReturnRows(sqlmock.NewRows(eventColumnNames))
	_, err = logger.Search(context.Background(), SearchFilter{OrganizationID: orgID, Limit: 1_000_000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	orgID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(`WHERE organization_id = \$1 AND id = \$2`).
		WithArgs(orgID, id).
		WillReturnRows(sqlmock.NewRows(eventColumnNames))

	_, err = logger.Get(context.Background(), orgID, id)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_GetStats(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	orgID := uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT actor_id\) FROM audit_events WHERE organization_id = \$1 AND timestamp >= \$2 AND timestamp <= \$3`).
		WithArgs(orgID, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count", "actors"}).AddRow(5, 2))
	mock.ExpectQuery(`SELECT event_type, COUNT\(\*\) FROM audit_events .* GROUP BY event_type`).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("authz.access_denied", 3).
			AddRow("role.assign", 2))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM audit_events .* GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("denied", 3).
			AddRow("success", 2))

	stats, err := logger.GetStats(context.Background(), orgID, &start, &end)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.UniqueActors)
	assert.Equal(t, int64(3), stats.EventsByType[EventTypeAccessDenied])
	assert.Equal(t, int64(3), stats.AccessDenials)
	require.NotNil(t, stats.TimeRange)
	assert.Equal(t, start, stats.TimeRange.Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_AppendOnly(t *testing.T) {
	// the type exposes no way to change or remove an event once written
	var logger interface{} = &DBLogger{}
	_, canUpdate := logger.(interface {
		Update(context.Context, *AuditEvent) error
	})
	_, canDelete := logger.(interface {
		Delete(context.Context, uuid.UUID) error
	})
	assert.False(t, canUpdate)
	assert.False(t, canDelete)
}
