package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Search(context.Context, SearchFilter) ([]*AuditEvent, error) {
	return nil, errors.New("database unavailable")
}

func (failingStore) Get(context.Context, uuid.UUID, uuid.UUID) (*AuditEvent, error) {
	return nil, ErrEventNotFound
}

func (failingStore) GetStats(context.Context, uuid.UUID, *time.Time, *time.Time) (*Stats, error) {
	return nil, errors.New("database unavailable")
}

func seededStore(t *testing.T) (*MemoryLogger, uuid.UUID) {
	t.Helper()
	m := NewMemoryLogger()
	orgID, actorID := uuid.New(), uuid.New()
	base := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, m.Log(context.Background(), &AuditEvent{
		Timestamp:      base,
		EventType:      EventTypeAccessDenied,
		Status:         EventStatusDenied,
		ActorID:        &actorID,
		ActorRole:      "parent",
		OrganizationID: &orgID,
		Action:         "view",
		ResourceType:   "student",
		ResourceID:     "s2",
		Reason:         "outside_scope",
		Message:        "scope, with comma",
	}))
	require.NoError(t, m.Log(context.Background(), &AuditEvent{
		Timestamp:      base.Add(time.Minute),
		EventType:      EventTypeRoleAssign,
		Status:         EventStatusSuccess,
		OrganizationID: &orgID,
		Metadata:       map[string]interface{}{"role": "school_admin"},
	}))
	return m, orgID
}

func TestExport_JSON(t *testing.T) {
	store, orgID := seededStore(t)

	for _, format := range []ExportFormat{ExportFormatJSON, ""} {
		data, err := Export(context.Background(), store, SearchFilter{OrganizationID: orgID}, format)
		require.NoError(t, err)

		var parsed []*AuditEvent
		require.NoError(t, json.Unmarshal(data, &parsed))
		require.Len(t, parsed, 2)
		assert.Equal(t, EventTypeRoleAssign, parsed[0].EventType)
		assert.Equal(t, "school_admin", parsed[0].Metadata["role"])
	}
}

func TestExport_NDJSON(t *testing.T) {
	store, orgID := seededStore(t)

	data, err := Export(context.Background(), store, SearchFilter{OrganizationID: orgID}, ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var event AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		assert.Equal(t, orgID, *event.OrganizationID)
	}
}

func TestExport_CSV(t *testing.T) {
	store, orgID := seededStore(t)

	data, err := Export(context.Background(), store, SearchFilter{OrganizationID: orgID}, ExportFormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])

	denied := records[2]
	assert.Equal(t, "2026-04-02T09:30:00Z", denied[1])
	assert.Equal(t, "denied", denied[3])
	assert.Equal(t, "parent", denied[5])
	assert.Empty(t, denied[7], "nil school renders empty")
	assert.Equal(t, "outside_scope", denied[11])
	assert.Equal(t, "scope, with comma", denied[12])
}

func TestExport_EmptyResult(t *testing.T) {
	store, _ := seededStore(t)

	data, err := Export(context.Background(), store, SearchFilter{OrganizationID: uuid.New()}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(csvHeader, ",")+"\n", string(data))

	data, err = Export(context.Background(), store, SearchFilter{OrganizationID: uuid.New()}, ExportFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestExport_Errors(t *testing.T) {
	store, orgID := seededStore(t)

	_, err := Export(context.Background(), store, SearchFilter{OrganizationID: orgID}, ExportFormat("xml"))
	assert.ErrorContains(t, err, "unsupported export format")

	_, err = Export(context.Background(), failingStore{}, SearchFilter{OrganizationID: orgID}, ExportFormatJSON)
	assert.ErrorContains(t, err, "database unavailable")
}

func TestFormatID(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), formatID(&id))
	assert.Empty(t, formatID(nil))
}
