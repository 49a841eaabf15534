package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLogger keeps events in memory. It backs development servers and tests.
type MemoryLogger struct {
	mu     sync.RWMutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty in-memory audit trail
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends a copy of event
func (m *MemoryLogger) Log(_ context.Context, event *AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}
	stored := *event

	m.mu.Lock()
	m.events = append(m.events, &stored)
	m.mu.Unlock()
	return nil
}

// Events returns every recorded event in insertion order
func (m *MemoryLogger) Events() []*AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Len returns the number of recorded events
func (m *MemoryLogger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Search returns the matching events of filter.OrganizationID, newest first
func (m *MemoryLogger) Search(_ context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	m.mu.RLock()
	var matched []*AuditEvent
	for _, event := range m.events {
		if matches(event, filter) {
			matched = append(matched, event)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	out := make([]*AuditEvent, 0)
	if filter.Offset >= len(matched) {
		return out, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return append(out, matched...), nil
}

// Get returns one event of an organization
func (m *MemoryLogger) Get(_ context.Context, orgID, id uuid.UUID) (*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, event := range m.events {
		if event.ID == id && event.OrganizationID != nil && *event.OrganizationID == orgID {
			return event, nil
		}
	}
	return nil, ErrEventNotFound
}

// GetStats summarizes the events of an organization
func (m *MemoryLogger) GetStats(ctx context.Context, orgID uuid.UUID, startTime, endTime *time.Time) (*Stats, error) {
	events, err := m.Search(ctx, SearchFilter{
		OrganizationID: orgID, StartTime: startTime, EndTime: endTime, Limit: MaxSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalEvents:    int64(len(events)),
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}
	if startTime != nil && endTime != nil {
		stats.TimeRange = &TimeRange{Start: *startTime, End: *endTime}
	}
	actors := make(map[uuid.UUID]struct{})
	for _, event := range events {
		stats.EventsByType[event.EventType]++
		stats.EventsByStatus[event.Status]++
		if event.ActorID != nil {
			actors[*event.ActorID] = struct{}{}
		}
	}
	stats.UniqueActors = int64(len(actors))
	stats.AccessDenials = stats.EventsByStatus[EventStatusDenied]
	return stats, nil
}

// Close is a no-op
func (m *MemoryLogger) Close() error {
	return nil
}

func matches(event *AuditEvent, f SearchFilter) bool {
	if event.OrganizationID == nil || *event.OrganizationID != f.OrganizationID {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.ActorID != nil && (event.ActorID == nil || *event.ActorID != *f.ActorID) {
		return false
	}
	if f.SchoolID != nil && (event.SchoolID == nil || *event.SchoolID != *f.SchoolID) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, et := range f.EventTypes {
			if event.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != nil && event.Status != *f.Status {
		return false
	}
	if f.ResourceType != "" && event.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && event.ResourceID != f.ResourceID {
		return false
	}
	return true
}
