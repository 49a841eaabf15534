package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/tenants"
)

// ScopeOf converts a resolved tenant context into a TenantScope. A nil context is the
// platform scope, where only platform-level assignments match.
func ScopeOf(tc *tenants.Context) TenantScope {
	if tc == nil || tc.Organization == nil {
		return TenantScope{}
	}
	orgID := tc.Organization.ID
	return TenantScope{OrganizationID: &orgID, SchoolID: tc.SchoolID()}
}

// matches reports whether a live assignment applies to scope
func (a *RoleAssignment) matches(scope TenantScope) bool {
	if a.RevokedAt != nil || a.Role == nil || !a.Role.IsActive {
		return false
	}
	switch a.Role.Level {
	case LevelPlatform:
		return true
	case LevelOrganization:
		return scope.OrganizationID != nil && sameID(a.OrganizationID, scope.OrganizationID)
	case LevelSchool:
		if scope.OrganizationID == nil || !sameID(a.OrganizationID, scope.OrganizationID) {
			return false
		}
		return scope.SchoolID == nil || sameID(a.SchoolID, scope.SchoolID)
	}
	return false
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// SelectEffective picks the effective role from a principal's assignments.
//
// An explicit selection wins if it matches the scope; a selection outside the scope
// yields ErrNoRoleInScope. Otherwise the lowest level wins (school, then organization,
// then platform), ties broken by the active flag and then the earliest grant.
func SelectEffective(principalID uuid.UUID, assignments []*RoleAssignment, scope TenantScope, selected *uuid.UUID) (*EffectiveRole, error) {
	var candidates []*RoleAssignment
	for _, a := range assignments {
		if a.PrincipalID == principalID && a.matches(scope) {
			candidates = append(candidates, a)
		}
	}

	if selected != nil {
		for _, a := range candidates {
			if a.ID == *selected {
				return effectiveFrom(a), nil
			}
		}
		return nil, ErrNoRoleInScope
	}

	if len(candidates) == 0 {
		return nil, ErrNoRoleInScope
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Role.Level != b.Role.Level {
			return a.Role.Level < b.Role.Level
		}
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		return a.GrantedAt.Before(b.GrantedAt)
	})
	return effectiveFrom(candidates[0]), nil
}

// effectiveFrom binds the scope of the role to the assignment, not the request
func effectiveFrom(a *RoleAssignment) *EffectiveRole {
	er := &EffectiveRole{PrincipalID: a.PrincipalID, Role: a.Role, Assignment: a}
	switch a.Role.Level {
	case LevelOrganization:
		er.OrganizationID = a.OrganizationID
	case LevelSchool:
		er.OrganizationID = a.OrganizationID
		er.SchoolID = a.SchoolID
	}
	return er
}

// Registry resolves effective roles and manages roles and assignments
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a registry backed by store
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// EffectiveRole resolves the single role a principal acts under in scope
func (r *Registry) EffectiveRole(ctx context.Context, principalID uuid.UUID, scope TenantScope, selected *uuid.UUID) (*EffectiveRole, error) {
	assignments, err := r.store.ListAssignments(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role assignments: %w", err)
	}
	return SelectEffective(principalID, assignments, scope, selected)
}

// PermissionsFor returns the operations role grants on module. System roles always
// answer from the built-in table, whatever is stored.
func (r *Registry) PermissionsFor(role *Role, module Module) OperationSet {
	return PermissionsFor(role, module)
}

// PermissionsFor is the store-free form of Registry.PermissionsFor
func PermissionsFor(role *Role, module Module) OperationSet {
	if role == nil {
		return 0
	}
	if role.IsSystem {
		return systemPermissions[role.Name][module]
	}
	return role.Permissions[module] & LevelCeiling(role.Level)[module]
}

// ValidateCustomRole checks that a tenant-defined role stays inside its organization
// and below its level ceiling.
func ValidateCustomRole(role *Role) error {
	if role.IsSystem {
		return ErrSystemRoleImmutable
	}
	if role.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	if role.Name.IsSystem() {
		return fmt.Errorf("%w: %q is a reserved role name", ErrInvalidRole, role.Name)
	}
	if role.OrganizationID == nil {
		return fmt.Errorf("%w: custom roles belong to an organization", ErrInvalidRole)
	}
	ceiling := LevelCeiling(role.Level)
	if ceiling == nil {
		return fmt.Errorf("%w: custom roles cannot be %s level", ErrInvalidRole, role.Level)
	}
	if err := role.Permissions.Validate(); err != nil {
		return err
	}
	if !role.Permissions.Within(ceiling) {
		return fmt.Errorf("%w: permissions exceed the %s level ceiling", ErrInvalidRole, role.Level)
	}
	return nil
}

// CreateCustomRole validates and stores a tenant-defined role
func (r *Registry) CreateCustomRole(ctx context.Context, role *Role) error {
	role.IsSystem = false
	if err := ValidateCustomRole(role); err != nil {
		return err
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	role.IsActive = true
	return r.store.CreateRole(ctx, role)
}

// UpdateCustomRole replaces the display fields and permissions of a custom role
func (r *Registry) UpdateCustomRole(ctx context.Context, role *Role) error {
	existing, err := r.store.GetRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return ErrSystemRoleImmutable
	}
	role.OrganizationID = existing.OrganizationID
	role.Level = existing.Level
	role.Name = existing.Name
	if err := ValidateCustomRole(role); err != nil {
		return err
	}
	return r.store.UpdateRole(ctx, role)
}

// DeactivateCustomRole disables a custom role; its assignments stop matching
func (r *Registry) DeactivateCustomRole(ctx context.Context, id uuid.UUID) error {
	existing, err := r.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return ErrSystemRoleImmutable
	}
	return r.store.DeactivateRole(ctx, id)
}

// GetRole returns a role by ID
func (r *Registry) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.store.GetRole(ctx, id)
}

// ListRoles returns the system roles plus the custom roles of an organization
func (r *Registry) ListRoles(ctx context.Context, orgID uuid.UUID) ([]*Role, error) {
	return r.store.ListRoles(ctx, orgID)
}

// Assign validates that the assignment scope fits the role level and stores it
func (r *Registry) Assign(ctx context.Context, a *RoleAssignment) error {
	role, err := r.store.GetRole(ctx, a.RoleID)
	if err != nil {
		return err
	}
	if !role.IsActive {
		return fmt.Errorf("%w: role %s is inactive", ErrInvalidAssignment, role.Name)
	}
	if err := validateAssignmentScope(role, a); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.GrantedAt.IsZero() {
		a.GrantedAt = r.now()
	}
	a.Role = role
	return r.store.CreateAssignment(ctx, a)
}

func validateAssignmentScope(role *Role, a *RoleAssignment) error {
	if a.PrincipalID == uuid.Nil {
		return fmt.Errorf("%w: principal is required", ErrInvalidAssignment)
	}
	if role.OrganizationID != nil && !sameID(role.OrganizationID, a.OrganizationID) {
		return fmt.Errorf("%w: role belongs to another organization", ErrInvalidAssignment)
	}
	switch role.Level {
	case LevelPlatform:
		if a.OrganizationID != nil || a.SchoolID != nil {
			return fmt.Errorf("%w: platform roles are not tenant scoped", ErrInvalidAssignment)
		}
	case LevelOrganization:
		if a.OrganizationID == nil || a.SchoolID != nil {
			return fmt.Errorf("%w: organization roles need exactly an organization", ErrInvalidAssignment)
		}
	case LevelSchool:
		if a.OrganizationID == nil || a.SchoolID == nil {
			return fmt.Errorf("%w: school roles need an organization and a school", ErrInvalidAssignment)
		}
	}
	return nil
}

// Revoke ends an assignment
func (r *Registry) Revoke(ctx context.Context, id uuid.UUID) error {
	return r.store.RevokeAssignment(ctx, id)
}

// ListAssignments returns the live assignments of a principal
func (r *Registry) ListAssignments(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error) {
	return r.store.ListAssignments(ctx, principalID)
}

// Members returns the live assignments inside filter's organization whose
// principal the filter admits, each treated as a user_profile instance
func (r *Registry) Members(ctx context.Context, filter ScopeFilter) ([]*RoleAssignment, error) {
	if filter.OrganizationID == nil {
		return []*RoleAssignment{}, nil
	}
	assignments, err := r.store.ListOrganizationAssignments(ctx, *filter.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role assignments: %w", err)
	}
	members := make([]*RoleAssignment, 0, len(assignments))
	for _, a := range assignments {
		if filter.Admits(a.MemberInstance()) {
			members = append(members, a)
		}
	}
	return members, nil
}

// PrimaryOrganization returns the organization of the principal's preferred
// tenant assignment, else of its earliest one. Principals holding only
// platform roles have none.
func (r *Registry) PrimaryOrganization(ctx context.Context, principalID uuid.UUID) (*uuid.UUID, error) {
	assignments, err := r.store.ListAssignments(ctx, principalID)
	if err != nil {
		return nil, err
	}
	var first *uuid.UUID
	for _, a := range assignments {
		if a.OrganizationID == nil {
			continue
		}
		if a.IsActive {
			return a.OrganizationID, nil
		}
		if first == nil {
			first = a.OrganizationID
		}
	}
	return first, nil
}

// Activate marks one assignment as the principal's preferred role
func (r *Registry) Activate(ctx context.Context, principalID, assignmentID uuid.UUID) error {
	return r.store.SetActiveAssignment(ctx, principalID, assignmentID)
}

// GetAssignment returns an assignment with its role
func (r *Registry) GetAssignment(ctx context.Context, id uuid.UUID) (*RoleAssignment, error) {
	return r.store.GetAssignment(ctx, id)
}
