package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckMonotonic(t *testing.T) {
	require.NoError(t, CheckMonotonic())
}

func TestFilterKind_Covers(t *testing.T) {
	assert.True(t, FilterUnrestricted.Covers(FilterOrganizationEquals))
	assert.True(t, FilterOrganizationEquals.Covers(FilterSchoolEquals))
	assert.True(t, FilterSchoolEquals.Covers(FilterOwnedBy))
	assert.True(t, FilterSchoolEquals.Covers(FilterAssignedTo))
	assert.True(t, FilterOwnedBy.Covers(FilterOwnedBy))

	assert.False(t, FilterOwnedBy.Covers(FilterAssignedTo))
	assert.False(t, FilterAssignedTo.Covers(FilterOwnedBy))
	assert.False(t, FilterSchoolEquals.Covers(FilterOrganizationEquals))
	assert.False(t, FilterKind("bogus").Covers(FilterKind("bogus")))
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		role RoleName
		rt   ResourceType
		want FilterKind
	}{
		{RoleSuperAdmin, ResourceStudent, FilterUnrestricted},
		{RolePlatformStaff, ResourceAuditEvent, FilterUnrestricted},
		{RoleOrgAdmin, ResourcePage, FilterOrganizationEquals},
		{RoleOrgStaff, ResourceGrade, FilterOrganizationEquals},
		{RoleSchoolAdmin, ResourcePage, FilterSchoolEquals},
		{RoleSchoolAdmin, ResourceOrganization, FilterOrganizationEquals},
		{RoleSchoolStaff, ResourceClass, FilterAssignedTo},
		{RoleSchoolStaff, ResourceNews, FilterSchoolEquals},
		{RoleSchoolStaff, ResourceRoleAssignment, FilterOwnedBy},
		{RoleParent, ResourceStudent, FilterOwnedBy},
		{RoleParent, ResourceNews, FilterSchoolEquals},
		{RoleStudent, ResourceGrade, FilterOwnedBy},
		{RoleStudent, ResourceOrganization, FilterOrganizationEquals},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.rt), func(t *testing.T) {
			role, err := SystemRole(tt.role)
			require.NoError(t, err)
			got, err := KindFor(role, tt.rt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindFor_CustomRoles(t *testing.T) {
	orgID := uuid.New()
	custom := &Role{Name: "teacher_lead", OrganizationID: &orgID, Level: LevelSchool}
	kind, err := KindFor(custom, ResourceClass)
	require.NoError(t, err)
	assert.Equal(t, FilterSchoolEquals, kind)

	custom.Level = LevelOrganization
	kind, err = KindFor(custom, ResourceClass)
	require.NoError(t, err)
	assert.Equal(t, FilterOrganizationEquals, kind)

	custom.Level = LevelPlatform
	_, err = KindFor(custom, ResourceClass)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = KindFor(custom, ResourceType("invoice"))
	assert.Error(t, err)
}

func TestSenior(t *testing.T) {
	assert.True(t, Senior(RoleSuperAdmin, RoleOrgAdmin))
	assert.True(t, Senior(RoleOrgAdmin, RoleSchoolAdmin))
	assert.True(t, Senior(RoleSchoolAdmin, RoleParent))
	assert.False(t, Senior(RoleParent, RoleStudent))
	assert.False(t, Senior(RoleSchoolStaff, RoleParent))
	assert.False(t, Senior(RoleOrgAdmin, "custom"))
}

// instanceUniverse enumerates records across two organizations, three schools and
// every combination of ownership and assignment relative to principal.
func instanceUniverse(principal, orgA, orgB, schoolX, schoolY, schoolZ uuid.UUID) []Instance {
	other := uuid.New()
	type placement struct {
		org    uuid.UUID
		school *uuid.UUID
	}
	placements := []placement{
		{orgA, &schoolX}, {orgA, &schoolY}, {orgA, nil}, {orgB, &schoolZ}, {orgB, nil},
	}
	relations := [][]uuid.UUID{nil, {principal}, {other}, {other, principal}}

	var out []Instance
	for _, rt := range ResourceTypes() {
		for _, p := range placements {
			for _, owners := range relations {
				for _, assignees := range relations {
					out = append(out, Instance{
						ID:             uuid.NewString(),
						Type:           rt,
						OrganizationID: p.org,
						SchoolID:       p.school,
						Owners:         owners,
						Assignees:      assignees,
					})
				}
			}
		}
	}
	return out
}

func TestScopeFilter_MonotonicOverInstances(t *testing.T) {
	principal := uuid.New()
	orgA, orgB := uuid.New(), uuid.New()
	schoolX, schoolY, schoolZ := uuid.New(), uuid.New(), uuid.New()
	universe := instanceUniverse(principal, orgA, orgB, schoolX, schoolY, schoolZ)

	filterOf := func(name RoleName, rt ResourceType) ScopeFilter {
		kind, err := kindForName(name, rt)
		require.NoError(t, err)
		return NewScopeFilter(kind, &orgA, &schoolX, principal)
	}

	for _, senior := range SystemRoleNames() {
		for _, junior := range SystemRoleNames() {
			if !Senior(senior, junior) {
				continue
			}
			for _, inst := range universe {
				jf := filterOf(junior, inst.Type)
				if !jf.Admits(inst) {
					continue
				}
				sf := filterOf(senior, inst.Type)
				if !sf.Admits(inst) {
					t.Fatalf("%s (%s) rejects %s instance admitted by junior %s (%s)",
						senior, sf.Kind, inst.Type, junior, jf.Kind)
				}
			}
		}
	}
}

func TestScopeFilter_Admits(t *testing.T) {
	principal := uuid.New()
	orgA, orgB := uuid.New(), uuid.New()
	schoolX, schoolY := uuid.New(), uuid.New()

	inX := Instance{Type: ResourcePage, OrganizationID: orgA, SchoolID: &schoolX}
	inY := Instance{Type: ResourcePage, OrganizationID: orgA, SchoolID: &schoolY}
	orgLevel := Instance{Type: ResourceOrganization, OrganizationID: orgA}
	otherOrg := Instance{Type: ResourcePage, OrganizationID: orgB, SchoolID: &schoolX}

	tests := []struct {
		name   string
		filter ScopeFilter
		inst   Instance
		want   bool
	}{
		{"unrestricted admits other org", NewScopeFilter(FilterUnrestricted, &orgA, &schoolX, principal), otherOrg, true},
		{"org equals admits sibling school", NewScopeFilter(FilterOrganizationEquals, &orgA, &schoolX, principal), inY, true},
		{"org equals rejects other org", NewScopeFilter(FilterOrganizationEquals, &orgA, nil, principal), otherOrg, false},
		{"school equals admits own school", NewScopeFilter(FilterSchoolEquals, &orgA, &schoolX, principal), inX, true},
		{"school equals rejects sibling school", NewScopeFilter(FilterSchoolEquals, &orgA, &schoolX, principal), inY, false},
		{"school equals rejects org-level record", NewScopeFilter(FilterSchoolEquals, &orgA, &schoolX, principal), orgLevel, false},
		{"school equals without school", NewScopeFilter(FilterSchoolEquals, &orgA, nil, principal), inX, false},
		{"school equals rejects same school id in other org", NewScopeFilter(FilterSchoolEquals, &orgA, &schoolX, principal), otherOrg, false},
		{"unbound filter rejects", ScopeFilter{Kind: FilterOrganizationEquals}, inX, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Admits(tt.inst))
		})
	}
}

func TestScopeFilter_ParentSeesOnlyOwnChild(t *testing.T) {
	parentID := uuid.New()
	orgA, schoolX := uuid.New(), uuid.New()

	parent, err := SystemRole(RoleParent)
	require.NoError(t, err)
	er := &EffectiveRole{PrincipalID: parentID, Role: parent, OrganizationID: &orgA, SchoolID: &schoolX}

	filter, err := FilterFor(er, ResourceStudent)
	require.NoError(t, err)
	assert.Equal(t, FilterOwnedBy, filter.Kind)

	s1 := Instance{ID: "s1", Type: ResourceStudent, OrganizationID: orgA, SchoolID: &schoolX, Owners: []uuid.UUID{parentID}}
	s2 := Instance{ID: "s2", Type: ResourceStudent, OrganizationID: orgA, SchoolID: &schoolX, Owners: []uuid.UUID{uuid.New()}}

	assert.True(t, filter.Admits(s1))
	assert.False(t, filter.Admits(s2))
}

func TestScopeFilter_TeacherSeesAssignedClasses(t *testing.T) {
	teacherID := uuid.New()
	orgA, schoolX := uuid.New(), uuid.New()

	staff, err := SystemRole(RoleSchoolStaff)
	require.NoError(t, err)
	er := &EffectiveRole{PrincipalID: teacherID, Role: staff, OrganizationID: &orgA, SchoolID: &schoolX}

	filter, err := FilterFor(er, ResourceClass)
	require.NoError(t, err)

	mine := Instance{Type: ResourceClass, OrganizationID: orgA, SchoolID: &schoolX, Assignees: []uuid.UUID{teacherID}}
	theirs := Instance{Type: ResourceClass, OrganizationID: orgA, SchoolID: &schoolX}
	ownedOnly := Instance{Type: ResourceClass, OrganizationID: orgA, SchoolID: &schoolX, Owners: []uuid.UUID{teacherID}}

	assert.True(t, filter.Admits(mine))
	assert.False(t, filter.Admits(theirs))
	assert.False(t, filter.Admits(ownedOnly))
}

func TestNewScopeFilter_KeepsOnlyNeededParameters(t *testing.T) {
	principal := uuid.New()
	org, school := uuid.New(), uuid.New()

	f := NewScopeFilter(FilterUnrestricted, &org, &school, principal)
	assert.Nil(t, f.OrganizationID)
	assert.Nil(t, f.SchoolID)
	assert.Nil(t, f.PrincipalID)

	f = NewScopeFilter(FilterOrganizationEquals, &org, &school, principal)
	assert.Equal(t, &org, f.OrganizationID)
	assert.Nil(t, f.SchoolID)
	assert.Nil(t, f.PrincipalID)

	f = NewScopeFilter(FilterOwnedBy, &org, &school, principal)
	require.NotNil(t, f.PrincipalID)
	assert.Equal(t, principal, *f.PrincipalID)
	assert.Equal(t, &school, f.SchoolID)
}

func TestScopeFilter_Clause(t *testing.T) {
	principal := uuid.New()
	org, school := uuid.New(), uuid.New()
	cols := Columns{Organization: "organization_id", School: "school_id", Owner: "owner_ids", Assignee: "teacher_ids"}

	clause, args := NewScopeFilter(FilterUnrestricted, &org, &school, principal).Clause(cols, 1)
	assert.Equal(t, "TRUE", clause)
	assert.Empty(t, args)

	clause, args = NewScopeFilter(FilterOrganizationEquals, &org, &school, principal).Clause(cols, 1)
	assert.Equal(t, "(organization_id = $1)", clause)
	assert.Equal(t, []interface{}{org}, args)

	clause, args = NewScopeFilter(FilterSchoolEquals, &org, &school, principal).Clause(cols, 3)
	assert.Equal(t, "(organization_id = $3 AND school_id = $4)", clause)
	assert.Equal(t, []interface{}{org, school}, args)

	clause, args = NewScopeFilter(FilterOwnedBy, &org, &school, principal).Clause(cols, 1)
	assert.Equal(t, "(organization_id = $1 AND school_id = $2 AND $3 = ANY(owner_ids))", clause)
	assert.Equal(t, []interface{}{org, school, principal}, args)

	clause, args = NewScopeFilter(FilterAssignedTo, &org, nil, principal).Clause(cols, 2)
	assert.Equal(t, "(organization_id = $2 AND $3 = ANY(teacher_ids))", clause)
	assert.Equal(t, []interface{}{org, principal}, args)
}

func TestScopeFilter_ClauseUnsupportedColumns(t *testing.T) {
	principal := uuid.New()
	org, school := uuid.New(), uuid.New()
	orgOnly := Columns{Organization: "organization_id"}

	clause, args := NewScopeFilter(FilterSchoolEquals, &org, &school, principal).Clause(orgOnly, 1)
	assert.Equal(t, "FALSE", clause)
	assert.Nil(t, args)

	clause, _ = NewScopeFilter(FilterOwnedBy, &org, nil, principal).Clause(orgOnly, 1)
	assert.Equal(t, "FALSE", clause)

	clause, _ = ScopeFilter{Kind: FilterOrganizationEquals}.Clause(orgOnly, 1)
	assert.Equal(t, "FALSE", clause)
}

func TestResourceTypes(t *testing.T) {
	types := ResourceTypes()
	require.NotEmpty(t, types)
	for _, rt := range types {
		module, err := ModuleOf(rt)
		require.NoError(t, err)
		assert.True(t, module.Valid(), rt)
	}
	_, err := ModuleOf("invoice")
	assert.Error(t, err)
}
