package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
)

// MemoryStore is an in-memory Store for tests and local development
type MemoryStore struct {
	mu           sync.Mutex
	applications map[uuid.UUID]*Application
	transfers    map[uuid.UUID]*Transfer
	transitions  []*Transition
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applications: make(map[uuid.UUID]*Application),
		transfers:    make(map[uuid.UUID]*Transfer),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func copyApplication(app *Application) *Application {
	c := *app
	c.OwnerIDs = append([]uuid.UUID{}, app.OwnerIDs...)
	return &c
}

func copyTransfer(t *Transfer) *Transfer {
	c := *t
	c.OwnerIDs = append([]uuid.UUID{}, t.OwnerIDs...)
	return &c
}

func (m *MemoryStore) CreateApplication(_ context.Context, app *Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	app.OwnerIDs = ownerIDs(app.OwnerIDs)
	app.CreatedAt = m.now()
	app.UpdatedAt = app.CreatedAt
	m.applications[app.ID] = copyApplication(app)
	return nil
}

func (m *MemoryStore) GetApplication(_ context.Context, id uuid.UUID) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyApplication(app), nil
}

func (m *MemoryStore) ListApplications(_ context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	apps := make([]*Application, 0)
	for _, app := range m.applications {
		if filter.Admits(*app.Instance()) {
			apps = append(apps, copyApplication(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID.String() < apps[j].ID.String()
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return page(apps, limit, offset), nil
}

func (m *MemoryStore) UpdateApplicationStatus(_ context.Context, id, actorID uuid.UUID, note string, fn ApplicationUpdate) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(copyApplication(stored))
	if err != nil {
		return nil, err
	}

	m.record(workflowAdmission, id, string(stored.Status), string(next), actorID, note)
	stored.Status = next
	stored.UpdatedAt = m.now()
	return copyApplication(stored), nil
}

func (m *MemoryStore) CreateTransfer(_ context.Context, t *Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.OwnerIDs = ownerIDs(t.OwnerIDs)
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	m.transfers[t.ID] = copyTransfer(t)
	return nil
}

func (m *MemoryStore) GetTransfer(_ context.Context, id uuid.UUID) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTransfer(t), nil
}

func (m *MemoryStore) ListTransfers(_ context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfers := make([]*Transfer, 0)
	for _, t := range m.transfers {
		if filter.Admits(*t.Instance(SideSource)) || filter.Admits(*t.Instance(SideDestination)) {
			transfers = append(transfers, copyTransfer(t))
		}
	}
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].CreatedAt.Equal(transfers[j].CreatedAt) {
			return transfers[i].ID.String() < transfers[j].ID.String()
		}
		return transfers[i].CreatedAt.After(transfers[j].CreatedAt)
	})
	return page(transfers, limit, offset), nil
}

func (m *MemoryStore) UpdateTransferStatus(_ context.Context, id, actorID uuid.UUID, note string, fn TransferUpdate) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(copyTransfer(stored))
	if err != nil {
		return nil, err
	}

	m.record(workflowTransfer, id, string(stored.Status), string(next), actorID, note)
	stored.Status = next
	stored.UpdatedAt = m.now()
	return copyTransfer(stored), nil
}

func (m *MemoryStore) ListTransitions(_ context.Context, workflow string, recordID uuid.UUID) ([]*Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Transition, 0)
	for _, tr := range m.transitions {
		if tr.Workflow == workflow && tr.RecordID == recordID {
			c := *tr
			out = append(out, &c)
		}
	}
	return out, nil
}

// record must be called with m.mu held
func (m *MemoryStore) record(workflow string, recordID uuid.UUID, from, to string, actorID uuid.UUID, note string) {
	m.transitions = append(m.transitions, &Transition{
		ID:        uuid.New(),
		Workflow:  workflow,
		RecordID:  recordID,
		From:      from,
		To:        to,
		ActorID:   actorID,
		Note:      note,
		CreatedAt: m.now(),
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := offset + pageLimit(limit)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
