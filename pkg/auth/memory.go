package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[uuid.UUID]*Principal
	byEmail    map[string]uuid.UUID
	tokens     map[uuid.UUID]*APIToken
	byHash     map[string]uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[uuid.UUID]*Principal),
		byEmail:    make(map[string]uuid.UUID),
		tokens:     make(map[uuid.UUID]*APIToken),
		byHash:     make(map[string]uuid.UUID),
	}
}

func (m *MemoryStore) CreatePrincipal(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.Email = NormalizeEmail(p.Email)
	if _, ok := m.byEmail[p.Email]; ok {
		return ErrEmailTaken
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	stored := *p
	m.principals[p.ID] = &stored
	m.byEmail[p.Email] = p.ID
	return nil
}

func (m *MemoryStore) GetPrincipal(_ context.Context, id uuid.UUID) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	m.mu.RLock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return m.GetPrincipal(ctx, id)
}

func (m *MemoryStore) ListPrincipals(_ context.Context, ids []uuid.UUID) ([]*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	principals := make([]*Principal, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.principals[id]; ok {
			copied := *p
			principals = append(principals, &copied)
		}
	}
	sort.Slice(principals, func(i, j int) bool { return principals[i].Email < principals[j].Email })
	return principals, nil
}

func (m *MemoryStore) UpdatePrincipal(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.principals[p.ID]
	if !ok {
		return ErrPrincipalNotFound
	}
	stored.FullName = p.FullName
	stored.PasswordHash = p.PasswordHash
	stored.IsActive = p.IsActive
	stored.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) RecordLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.LastLoginAt = &at
	return nil
}

func (m *MemoryStore) CreateToken(_ context.Context, t *APIToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *t
	m.tokens[t.ID] = &stored
	m.byHash[t.TokenHash] = t.ID
	return nil
}

func (m *MemoryStore) GetTokenByHash(_ context.Context, hash string) (*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *m.tokens[id]
	return &copied, nil
}

func (m *MemoryStore) TouchToken(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tokens[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

func (m *MemoryStore) RevokeToken(_ context.Context, id, revokedBy uuid.UUID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
		t.RevokedBy = &revokedBy
		t.RevokeReason = reason
	}
	return nil
}

func (m *MemoryStore) ListTokens(_ context.Context, principalID uuid.UUID) ([]*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]*APIToken, 0)
	for _, t := range m.tokens {
		if t.PrincipalID == principalID {
			copied := *t
			tokens = append(tokens, &copied)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
	return tokens, nil
}

func (m *MemoryStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt != nil && t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			delete(m.byHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}
