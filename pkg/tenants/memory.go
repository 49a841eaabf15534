package tenants

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory for tests and local development
type MemoryDirectory struct {
	mu      sync.RWMutex
	orgs    map[uuid.UUID]*Organization
	schools map[uuid.UUID]*School
}

// NewMemoryDirectory creates an empty MemoryDirectory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		orgs:    make(map[uuid.UUID]*Organization),
		schools: make(map[uuid.UUID]*School),
	}
}

func (m *MemoryDirectory) CreateOrganization(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Slug == "" {
		org.Slug = GenerateSlug(org.Name)
	}
	if !ValidSlug(org.Slug) {
		return ErrInvalidSlug
	}
	if org.SubscriptionStatus == "" {
		org.SubscriptionStatus = SubscriptionTrial
	}
	if org.Domain != nil {
		domain := normalizeHost(*org.Domain)
		org.Domain = &domain
	}
	for _, existing := range m.orgs {
		if existing.Slug == org.Slug {
			return ErrSlugTaken
		}
		if org.Domain != nil && existing.Domain != nil && *existing.Domain == *org.Domain {
			return ErrDomainTaken
		}
	}
	org.IsActive = true
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt

	stored := *org
	m.orgs[org.ID] = &stored
	return nil
}

func (m *MemoryDirectory) GetOrganization(_ context.Context, id uuid.UUID) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if org, ok := m.orgs[id]; ok {
		copied := *org
		return &copied, nil
	}
	return nil, ErrOrganizationNotFound
}

func (m *MemoryDirectory) GetOrganizationBySlug(_ context.Context, slug string) (*Organization, error) {
	return m.findOrg(func(o *Organization) bool { return o.Slug == slug })
}

func (m *MemoryDirectory) GetOrganizationByDomain(_ context.Context, domain string) (*Organization, error) {
	domain = normalizeHost(domain)
	return m.findOrg(func(o *Organization) bool { return o.Domain != nil && *o.Domain == domain })
}

func (m *MemoryDirectory) findOrg(match func(*Organization) bool) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, org := range m.orgs {
		if match(org) {
			copied := *org
			return &copied, nil
		}
	}
	return nil, ErrOrganizationNotFound
}

func (m *MemoryDirectory) SetSubscriptionStatus(_ context.Context, id uuid.UUID, status SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return ErrOrganizationNotFound
	}
	org.SubscriptionStatus = status
	org.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDirectory) DeactivateOrganization(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return ErrOrganizationNotFound
	}
	org.IsActive = false
	return nil
}

func (m *MemoryDirectory) CreateSchool(_ context.Context, school *School) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[school.OrganizationID]; !ok {
		return ErrOrganizationNotFound
	}
	if school.ID == uuid.Nil {
		school.ID = uuid.New()
	}
	if school.Slug == "" {
		school.Slug = GenerateSlug(school.Name)
	}
	school.IsActive = true
	school.CreatedAt = time.Now()
	school.UpdatedAt = school.CreatedAt

	stored := *school
	m.schools[school.ID] = &stored
	return nil
}

func (m *MemoryDirectory) GetSchool(_ context.Context, id uuid.UUID) (*School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if school, ok := m.schools[id]; ok && school.IsActive {
		copied := *school
		return &copied, nil
	}
	return nil, ErrSchoolNotFound
}

func (m *MemoryDirectory) ListSchools(_ context.Context, orgID uuid.UUID) ([]*School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*School
	for _, school := range m.schools {
		if school.OrganizationID == orgID && school.IsActive {
			copied := *school
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDirectory) UpdateSchool(_ context.Context, id uuid.UUID, update *SchoolUpdate) (*School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	school, ok := m.schools[id]
	if !ok || !school.IsActive {
		return nil, ErrSchoolNotFound
	}
	if update.Name != nil {
		school.Name = *update.Name
	}
	if update.Config != nil {
		school.Config = *update.Config
	}
	if update.IsPublished != nil {
		school.IsPublished = *update.IsPublished
	}
	school.UpdatedAt = time.Now()
	copied := *school
	return &copied, nil
}

func (m *MemoryDirectory) DeleteSchool(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	school, ok := m.schools[id]
	if !ok || !school.IsActive {
		return ErrSchoolNotFound
	}
	school.IsActive = false
	return nil
}
