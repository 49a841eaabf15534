package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/tenants"
)

type fixture struct {
	principal uuid.UUID
	orgA      uuid.UUID
	orgB      uuid.UUID
	schoolX   uuid.UUID
	schoolY   uuid.UUID
	granted   time.Time
}

func newFixture() fixture {
	return fixture{
		principal: uuid.New(),
		orgA:      uuid.New(),
		orgB:      uuid.New(),
		schoolX:   uuid.New(),
		schoolY:   uuid.New(),
		granted:   time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f fixture) assign(t *testing.T, name RoleName, org, school *uuid.UUID, offset time.Duration) *RoleAssignment {
	t.Helper()
	role, err := SystemRole(name)
	require.NoError(t, err)
	return &RoleAssignment{
		ID:             uuid.New(),
		PrincipalID:    f.principal,
		RoleID:         role.ID,
		OrganizationID: org,
		SchoolID:       school,
		GrantedAt:      f.granted.Add(offset),
		Role:           role,
	}
}

func TestSelectEffective_Precedence(t *testing.T) {
	f := newFixture()
	platform := f.assign(t, RolePlatformStaff, nil, nil, 0)
	org := f.assign(t, RoleOrgAdmin, &f.orgA, nil, time.Minute)
	school := f.assign(t, RoleSchoolAdmin, &f.orgA, &f.schoolX, 2*time.Minute)
	all := []*RoleAssignment{platform, org, school}

	scopeX := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}
	scopeY := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolY}
	scopeOrg := TenantScope{OrganizationID: &f.orgA}
	scopeB := TenantScope{OrganizationID: &f.orgB}

	tests := []struct {
		name  string
		scope TenantScope
		want  *RoleAssignment
	}{
		{"school beats organization and platform", scopeX, school},
		{"school assignment of another school is skipped", scopeY, org},
		{"organization scope without school picks school assignment", scopeOrg, school},
		{"other organization falls back to platform", scopeB, platform},
		{"platform scope", TenantScope{}, platform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			er, err := SelectEffective(f.principal, all, tt.scope, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, er.Assignment.ID)
			assert.Equal(t, tt.want.Role.Name, er.Role.Name)
		})
	}
}

func TestSelectEffective_BindsAssignmentScope(t *testing.T) {
	f := newFixture()
	school := f.assign(t, RoleSchoolStaff, &f.orgA, &f.schoolX, 0)

	er, err := SelectEffective(f.principal, []*RoleAssignment{school}, TenantScope{OrganizationID: &f.orgA}, nil)
	require.NoError(t, err)
	assert.Equal(t, &f.orgA, er.OrganizationID)
	assert.Equal(t, &f.schoolX, er.SchoolID)
	assert.Equal(t, LevelSchool, er.Level())
	assert.False(t, er.IsPlatform())

	platform := f.assign(t, RoleSuperAdmin, nil, nil, 0)
	er, err = SelectEffective(f.principal, []*RoleAssignment{platform}, TenantScope{OrganizationID: &f.orgA}, nil)
	require.NoError(t, err)
	assert.Nil(t, er.OrganizationID)
	assert.True(t, er.IsPlatform())
}

func TestSelectEffective_TieBreaks(t *testing.T) {
	f := newFixture()
	scope := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}

	early := f.assign(t, RoleSchoolStaff, &f.orgA, &f.schoolX, 0)
	late := f.assign(t, RoleParent, &f.orgA, &f.schoolX, time.Hour)

	er, err := SelectEffective(f.principal, []*RoleAssignment{late, early}, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, early.ID, er.Assignment.ID, "earliest grant wins")

	late.IsActive = true
	er, err = SelectEffective(f.principal, []*RoleAssignment{early, late}, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, late.ID, er.Assignment.ID, "active flag beats grant order")
}

func TestSelectEffective_ExplicitSelection(t *testing.T) {
	f := newFixture()
	scope := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}
	org := f.assign(t, RoleOrgStaff, &f.orgA, nil, 0)
	school := f.assign(t, RoleSchoolStaff, &f.orgA, &f.schoolX, 0)
	elsewhere := f.assign(t, RoleOrgAdmin, &f.orgB, nil, 0)
	all := []*RoleAssignment{org, school, elsewhere}

	er, err := SelectEffective(f.principal, all, scope, &org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, er.Assignment.ID)

	_, err = SelectEffective(f.principal, all, scope, &elsewhere.ID)
	assert.ErrorIs(t, err, ErrNoRoleInScope)

	unknown := uuid.New()
	_, err = SelectEffective(f.principal, all, scope, &unknown)
	assert.ErrorIs(t, err, ErrNoRoleInScope)
}

func TestSelectEffective_NoRoleInScope(t *testing.T) {
	f := newFixture()
	scope := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}

	revokedAt := f.granted
	revoked := f.assign(t, RoleSchoolAdmin, &f.orgA, &f.schoolX, 0)
	revoked.RevokedAt = &revokedAt

	inactiveRole := f.assign(t, RoleSchoolAdmin, &f.orgA, &f.schoolX, 0)
	inactiveRole.Role.IsActive = false

	otherPrincipal := f.assign(t, RoleSchoolAdmin, &f.orgA, &f.schoolX, 0)
	otherPrincipal.PrincipalID = uuid.New()

	otherOrg := f.assign(t, RoleOrgAdmin, &f.orgB, nil, 0)
	noRole := &RoleAssignment{ID: uuid.New(), PrincipalID: f.principal, OrganizationID: &f.orgA}

	tests := []struct {
		name        string
		assignments []*RoleAssignment
		scope       TenantScope
	}{
		{"no assignments", nil, scope},
		{"revoked", []*RoleAssignment{revoked}, scope},
		{"inactive role", []*RoleAssignment{inactiveRole}, scope},
		{"another principal", []*RoleAssignment{otherPrincipal}, scope},
		{"another organization", []*RoleAssignment{otherOrg}, scope},
		{"role not loaded", []*RoleAssignment{noRole}, scope},
		{"tenant role in platform scope", []*RoleAssignment{otherOrg}, TenantScope{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			er, err := SelectEffective(f.principal, tt.assignments, tt.scope, nil)
			assert.ErrorIs(t, err, ErrNoRoleInScope)
			assert.Nil(t, er)
		})
	}
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, TenantScope{}, ScopeOf(nil))
	assert.Equal(t, TenantScope{}, ScopeOf(&tenants.Context{}))

	org := &tenants.Organization{ID: uuid.New()}
	school := &tenants.School{ID: uuid.New(), OrganizationID: org.ID}

	scope := ScopeOf(&tenants.Context{Organization: org})
	require.NotNil(t, scope.OrganizationID)
	assert.Equal(t, org.ID, *scope.OrganizationID)
	assert.Nil(t, scope.SchoolID)

	scope = ScopeOf(&tenants.Context{Organization: org, School: school})
	require.NotNil(t, scope.SchoolID)
	assert.Equal(t, school.ID, *scope.SchoolID)
}

func TestValidateCustomRole(t *testing.T) {
	orgID := uuid.New()
	valid := func() *Role {
		return &Role{
			Name:           "deputy_head",
			OrganizationID: &orgID,
			Level:          LevelSchool,
			Permissions:    Permissions{ModuleCMS: LimitedWrite, ModuleAudit: ReadOnly},
		}
	}
	require.NoError(t, ValidateCustomRole(valid()))

	tests := []struct {
		name   string
		mutate func(*Role)
		want   error
	}{
		{"system", func(r *Role) { r.IsSystem = true }, ErrSystemRoleImmutable},
		{"empty name", func(r *Role) { r.Name = "" }, ErrInvalidRole},
		{"reserved name", func(r *Role) { r.Name = RoleOrgAdmin }, ErrInvalidRole},
		{"no organization", func(r *Role) { r.OrganizationID = nil }, ErrInvalidRole},
		{"platform level", func(r *Role) { r.Level = LevelPlatform }, ErrInvalidRole},
		{"unknown module", func(r *Role) { r.Permissions["billing"] = ReadOnly }, ErrInvalidRole},
		{"audit write", func(r *Role) { r.Permissions[ModuleAudit] = FullAccess }, ErrInvalidRole},
		{"above school ceiling", func(r *Role) { r.Permissions[ModuleOrganizations] = FullAccess }, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := valid()
			tt.mutate(role)
			assert.ErrorIs(t, ValidateCustomRole(role), tt.want)
		})
	}
}

func TestPermissionsFor_CustomRoleMaskedByCeiling(t *testing.T) {
	orgID := uuid.New()
	role := &Role{
		Name:           "registrar",
		OrganizationID: &orgID,
		Level:          LevelSchool,
		Permissions:    Permissions{ModuleAdmissions: FullAccess, ModuleOrganizations: FullAccess},
	}
	registry := NewRegistry(nil)
	assert.Equal(t, FullAccess, registry.PermissionsFor(role, ModuleAdmissions))
	assert.Equal(t, ReadOnly, registry.PermissionsFor(role, ModuleOrganizations))
	assert.Equal(t, OperationSet(0), registry.PermissionsFor(role, ModuleCMS))
}

func newTestRegistry(t *testing.T) (*Registry, *SQLStore) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewTestStore(t, db)
	return NewRegistry(store), store
}

func TestRegistry_CustomRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()

	role := &Role{
		Name:           "librarian",
		DisplayName:    "Librarian",
		OrganizationID: &f.orgA,
		Level:          LevelSchool,
		Permissions:    Permissions{ModuleCMS: LimitedWrite},
	}
	require.NoError(t, registry.CreateCustomRole(ctx, role))
	assert.NotEqual(t, uuid.Nil, role.ID)
	assert.True(t, role.IsActive)

	stored, err := registry.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleName("librarian"), stored.Name)
	assert.Equal(t, LevelSchool, stored.Level)
	assert.Equal(t, LimitedWrite, stored.Permissions[ModuleCMS])
	assert.False(t, stored.IsSystem)

	roles, err := registry.ListRoles(ctx, f.orgA)
	require.NoError(t, err)
	assert.Len(t, roles, 9)

	others, err := registry.ListRoles(ctx, f.orgB)
	require.NoError(t, err)
	assert.Len(t, others, 8)

	role.Permissions = Permissions{ModuleCMS: FullAccess}
	role.Name = "renamed"
	require.NoError(t, registry.UpdateCustomRole(ctx, role))
	stored, err = registry.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, FullAccess, stored.Permissions[ModuleCMS])
	assert.Equal(t, RoleName("librarian"), stored.Name, "name is immutable")

	role.Permissions = Permissions{ModuleOrganizations: FullAccess}
	assert.ErrorIs(t, registry.UpdateCustomRole(ctx, role), ErrInvalidRole)

	require.NoError(t, registry.DeactivateCustomRole(ctx, role.ID))
	roles, err = registry.ListRoles(ctx, f.orgA)
	require.NoError(t, err)
	assert.Len(t, roles, 8)
}

func TestRegistry_SystemRolesImmutable(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	admin, err := SystemRole(RoleOrgAdmin)
	require.NoError(t, err)
	admin.Permissions = Permissions{}

	assert.ErrorIs(t, registry.UpdateCustomRole(ctx, admin), ErrSystemRoleImmutable)
	assert.ErrorIs(t, registry.DeactivateCustomRole(ctx, admin.ID), ErrSystemRoleImmutable)
	assert.ErrorIs(t, registry.CreateCustomRole(ctx, admin), ErrInvalidRole)

	_, err = registry.GetRole(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRegistry_AssignValidatesScope(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()

	custom := &Role{Name: "coach", OrganizationID: &f.orgA, Level: LevelSchool, Permissions: Permissions{ModuleAcademics: ReadOnly}}
	require.NoError(t, registry.CreateCustomRole(ctx, custom))

	tests := []struct {
		name   string
		role   uuid.UUID
		org    *uuid.UUID
		school *uuid.UUID
	}{
		{"platform role with organization", SystemRoleID(RoleSuperAdmin), &f.orgA, nil},
		{"organization role without organization", SystemRoleID(RoleOrgAdmin), nil, nil},
		{"organization role with school", SystemRoleID(RoleOrgAdmin), &f.orgA, &f.schoolX},
		{"school role without school", SystemRoleID(RoleSchoolAdmin), &f.orgA, nil},
		{"custom role in another organization", custom.ID, &f.orgB, &f.schoolY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Assign(ctx, &RoleAssignment{
				PrincipalID:    f.principal,
				RoleID:         tt.role,
				OrganizationID: tt.org,
				SchoolID:       tt.school,
			})
			assert.ErrorIs(t, err, ErrInvalidAssignment)
		})
	}

	err := registry.Assign(ctx, &RoleAssignment{RoleID: SystemRoleID(RoleSuperAdmin)})
	assert.ErrorIs(t, err, ErrInvalidAssignment)

	err = registry.Assign(ctx, &RoleAssignment{PrincipalID: f.principal, RoleID: uuid.New()})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRegistry_EffectiveRoleFlow(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()
	scopeX := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}

	_, err := registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.ErrorIs(t, err, ErrNoRoleInScope)

	orgStaff := &RoleAssignment{PrincipalID: f.principal, RoleID: SystemRoleID(RoleOrgStaff), OrganizationID: &f.orgA}
	require.NoError(t, registry.Assign(ctx, orgStaff))

	er, err := registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleOrgStaff, er.Role.Name)

	staff := &RoleAssignment{PrincipalID: f.principal, RoleID: SystemRoleID(RoleSchoolStaff), OrganizationID: &f.orgA, SchoolID: &f.schoolX}
	require.NoError(t, registry.Assign(ctx, staff))
	parent := &RoleAssignment{
		PrincipalID: f.principal, RoleID: SystemRoleID(RoleParent), OrganizationID: &f.orgA, SchoolID: &f.schoolX,
		GrantedAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, registry.Assign(ctx, parent))

	er, err = registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleSchoolStaff, er.Role.Name, "school level and earliest grant")
	assert.Equal(t, &f.schoolX, er.SchoolID)

	require.NoError(t, registry.Activate(ctx, f.principal, parent.ID))
	er, err = registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleParent, er.Role.Name, "activated assignment wins the tie")

	er, err = registry.EffectiveRole(ctx, f.principal, scopeX, &orgStaff.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleOrgStaff, er.Role.Name, "explicit selection")

	assert.ErrorIs(t, registry.Activate(ctx, uuid.New(), parent.ID), ErrAssignmentNotFound)

	require.NoError(t, registry.Revoke(ctx, parent.ID))
	assert.ErrorIs(t, registry.Revoke(ctx, parent.ID), ErrAssignmentNotFound)

	er, err = registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleSchoolStaff, er.Role.Name)

	assignments, err := registry.ListAssignments(ctx, f.principal)
	require.NoError(t, err)
	assert.Len(t, assignments, 2)

	_, err = registry.EffectiveRole(ctx, f.principal, TenantScope{OrganizationID: &f.orgB}, nil)
	assert.ErrorIs(t, err, ErrNoRoleInScope)
}

func TestRegistry_DeactivatedCustomRoleStopsMatching(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()
	scopeX := TenantScope{OrganizationID: &f.orgA, SchoolID: &f.schoolX}

	custom := &Role{Name: "nurse", OrganizationID: &f.orgA, Level: LevelSchool, Permissions: Permissions{ModuleAcademics: ReadOnly}}
	require.NoError(t, registry.CreateCustomRole(ctx, custom))
	require.NoError(t, registry.Assign(ctx, &RoleAssignment{
		PrincipalID: f.principal, RoleID: custom.ID, OrganizationID: &f.orgA, SchoolID: &f.schoolX,
	}))

	er, err := registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	require.NoError(t, err)
	assert.Equal(t, custom.ID, er.Role.ID)
	assert.Equal(t, ReadOnly, registry.PermissionsFor(er.Role, ModuleAcademics))

	require.NoError(t, registry.DeactivateCustomRole(ctx, custom.ID))
	_, err = registry.EffectiveRole(ctx, f.principal, scopeX, nil)
	assert.ErrorIs(t, err, ErrNoRoleInScope)

	err = registry.Assign(ctx, &RoleAssignment{
		PrincipalID: f.principal, RoleID: custom.ID, OrganizationID: &f.orgA, SchoolID: &f.schoolX,
	})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestRegistry_Members(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()

	admin, staffX, parentX, staffY, outsider := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	for _, a := range []*RoleAssignment{
		{PrincipalID: admin, RoleID: SystemRoleID(RoleOrgAdmin), OrganizationID: &f.orgA},
		{PrincipalID: staffX, RoleID: SystemRoleID(RoleSchoolStaff), OrganizationID: &f.orgA, SchoolID: &f.schoolX},
		{PrincipalID: parentX, RoleID: SystemRoleID(RoleParent), OrganizationID: &f.orgA, SchoolID: &f.schoolX},
		{PrincipalID: staffY, RoleID: SystemRoleID(RoleSchoolStaff), OrganizationID: &f.orgA, SchoolID: &f.schoolY},
		{PrincipalID: outsider, RoleID: SystemRoleID(RoleOrgAdmin), OrganizationID: &f.orgB},
	} {
		require.NoError(t, registry.Assign(ctx, a))
	}

	principals := func(members []*RoleAssignment) []uuid.UUID {
		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.PrincipalID)
		}
		return ids
	}

	members, err := registry.Members(ctx, NewScopeFilter(FilterOrganizationEquals, &f.orgA, nil, admin))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{admin, staffX, parentX, staffY}, principals(members))

	members, err = registry.Members(ctx, NewScopeFilter(FilterSchoolEquals, &f.orgA, &f.schoolX, staffX))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{staffX, parentX}, principals(members), "org-level members are outside a school filter")

	members, err = registry.Members(ctx, NewScopeFilter(FilterOwnedBy, &f.orgA, &f.schoolX, parentX))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{parentX}, principals(members))

	members, err = registry.Members(ctx, ScopeFilter{Kind: FilterUnrestricted})
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRegistry_PrimaryOrganization(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	f := newFixture()

	orgID, err := registry.PrimaryOrganization(ctx, f.principal)
	require.NoError(t, err)
	assert.Nil(t, orgID)

	require.NoError(t, registry.Assign(ctx, &RoleAssignment{PrincipalID: f.principal, RoleID: SystemRoleID(RolePlatformStaff)}))
	orgID, err = registry.PrimaryOrganization(ctx, f.principal)
	require.NoError(t, err)
	assert.Nil(t, orgID, "platform roles carry no organization")

	first := &RoleAssignment{PrincipalID: f.principal, RoleID: SystemRoleID(RoleOrgStaff), OrganizationID: &f.orgA, GrantedAt: f.granted}
	preferred := &RoleAssignment{PrincipalID: f.principal, RoleID: SystemRoleID(RoleOrgStaff), OrganizationID: &f.orgB, GrantedAt: f.granted.Add(time.Hour)}
	require.NoError(t, registry.Assign(ctx, first))
	require.NoError(t, registry.Assign(ctx, preferred))

	orgID, err = registry.PrimaryOrganization(ctx, f.principal)
	require.NoError(t, err)
	require.NotNil(t, orgID)
	assert.Equal(t, f.orgA, *orgID, "earliest grant")

	require.NoError(t, registry.Activate(ctx, f.principal, preferred.ID))
	orgID, err = registry.PrimaryOrganization(ctx, f.principal)
	require.NoError(t, err)
	assert.Equal(t, f.orgB, *orgID, "preferred assignment")
}
