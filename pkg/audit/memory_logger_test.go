package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventAt(orgID uuid.UUID, eventType EventType, status EventStatus, ts time.Time) *AuditEvent {
	return &AuditEvent{OrganizationID: &orgID, EventType: eventType, Status: status, Timestamp: ts}
}

func TestMemoryLogger_SearchIsTenantBound(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()
	orgA, orgB := uuid.New(), uuid.New()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, m.Log(ctx, eventAt(orgA, EventTypeRoleAssign, EventStatusSuccess, base)))
	require.NoError(t, m.Log(ctx, eventAt(orgA, EventTypeAccessDenied, EventStatusDenied, base.Add(time.Minute))))
	require.NoError(t, m.Log(ctx, eventAt(orgB, EventTypeAccessDenied, EventStatusDenied, base.Add(2*time.Minute))))
	require.NoError(t, m.Log(ctx, &AuditEvent{EventType: EventTypeAuthLoginFailed, Status: EventStatusFailure}))
	assert.Equal(t, 4, m.Len())

	events, err := m.Search(ctx, SearchFilter{OrganizationID: orgA})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeAccessDenied, events[0].EventType, "newest first")
	for _, e := range events {
		assert.Equal(t, orgA, *e.OrganizationID)
	}

	denied := EventStatusDenied
	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgB, Status: &denied})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: uuid.New()})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestMemoryLogger_SearchFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()
	orgID, actor, school := uuid.New(), uuid.New(), uuid.New()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := eventAt(orgID, EventTypeWorkflowTransition, EventStatusSuccess, base.Add(time.Duration(i)*time.Hour))
		e.ResourceType = "admission_application"
		e.ResourceID = "app-1"
		if i%2 == 0 {
			e.ActorID = &actor
			e.SchoolID = &school
		}
		require.NoError(t, m.Log(ctx, e))
	}

	events, err := m.Search(ctx, SearchFilter{OrganizationID: orgID, ActorID: &actor})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, SchoolID: &school, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	start := base.Add(90 * time.Minute)
	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, StartTime: &start})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, ResourceID: "app-2"})
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = m.Search(ctx, SearchFilter{OrganizationID: orgID, EventTypes: []EventType{EventTypeRoleAssign, EventTypeWorkflowTransition}})
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestMemoryLogger_GetAndStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()
	orgID, actor := uuid.New(), uuid.New()

	denied := eventAt(orgID, EventTypeAccessDenied, EventStatusDenied, time.Now().UTC())
	denied.ActorID = &actor
	require.NoError(t, m.Log(ctx, denied))
	require.NoError(t, m.Log(ctx, eventAt(orgID, EventTypeRoleAssign, EventStatusSuccess, time.Now().UTC())))

	got, err := m.Get(ctx, orgID, denied.ID)
	require.NoError(t, err)
	assert.Equal(t, EventTypeAccessDenied, got.EventType)

	_, err = m.Get(ctx, uuid.New(), denied.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)

	stats, err := m.GetStats(ctx, orgID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.AccessDenials)
	assert.Equal(t, int64(1), stats.UniqueActors)
	assert.Nil(t, stats.TimeRange)
}

func TestMemoryLogger_StoresCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()
	orgID := uuid.New()

	event := eventAt(orgID, EventTypeSchoolUpdate, EventStatusSuccess, time.Now().UTC())
	require.NoError(t, m.Log(ctx, event))
	event.Status = EventStatusFailure

	assert.Equal(t, EventStatusSuccess, m.Events()[0].Status)
}

func TestMemoryLogger_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()
	orgID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Log(ctx, eventAt(orgID, EventTypeAccessGranted, EventStatusSuccess, time.Time{}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())
	ids := make(map[uuid.UUID]bool)
	for _, e := range m.Events() {
		ids[e.ID] = true
	}
	assert.Len(t, ids, 50)
}

func TestMemoryLogger_TenantEventsNeedOrganization(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLogger()

	err := m.Log(ctx, &AuditEvent{EventType: EventTypeSchoolUpdate, Status: EventStatusSuccess})
	assert.ErrorIs(t, err, ErrOrganizationRequired)
	err = m.Log(ctx, &AuditEvent{EventType: EventTypePrincipalDeactivate, Status: EventStatusSuccess})
	assert.ErrorIs(t, err, ErrOrganizationRequired)
	assert.Equal(t, 0, m.Len())

	for _, eventType := range []EventType{
		EventTypeAuthLogin, EventTypeAuthLoginFailed, EventTypeAuthTokenRevoke,
		EventTypeAccessDenied, EventTypeAccessGranted, EventTypeRoleAssign,
	} {
		assert.NoError(t, m.Log(ctx, &AuditEvent{EventType: eventType, Status: EventStatusSuccess}), eventType)
	}
	assert.Equal(t, 6, m.Len())
}

func TestEventType_PlatformScoped(t *testing.T) {
	assert.True(t, EventTypeAuthPassword.PlatformScoped())
	assert.True(t, EventTypeAccessDenied.PlatformScoped())
	assert.True(t, EventTypeRoleRevoke.PlatformScoped())
	assert.False(t, EventTypeRoleCreate.PlatformScoped())
	assert.False(t, EventTypeOrgStatusChange.PlatformScoped())
	assert.False(t, EventTypeWorkflowTransition.PlatformScoped())
	assert.False(t, EventTypePrincipalCreate.PlatformScoped())
}
