package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemRoles_Complete(t *testing.T) {
	roles := SystemRoles()
	require.Len(t, roles, 8)

	seen := make(map[RoleName]bool)
	for _, role := range roles {
		assert.True(t, role.IsSystem)
		assert.True(t, role.IsActive)
		assert.Nil(t, role.OrganizationID)
		assert.Equal(t, SystemRoleID(role.Name), role.ID)
		assert.NotEmpty(t, role.DisplayName)
		assert.NoError(t, role.Permissions.Validate())
		seen[role.Name] = true
	}
	for _, name := range SystemRoleNames() {
		assert.True(t, seen[name], "missing system role %s", name)
	}
}

func TestSystemRoleID_Deterministic(t *testing.T) {
	assert.Equal(t, SystemRoleID(RoleOrgAdmin), SystemRoleID(RoleOrgAdmin))
	assert.NotEqual(t, SystemRoleID(RoleOrgAdmin), SystemRoleID(RoleOrgStaff))
}

func TestSystemRole_ReturnsCopy(t *testing.T) {
	role, err := SystemRole(RoleParent)
	require.NoError(t, err)
	role.Permissions[ModuleAudit] = FullAccess

	fresh, err := SystemRole(RoleParent)
	require.NoError(t, err)
	assert.Equal(t, OperationSet(0), fresh.Permissions[ModuleAudit])

	_, err = SystemRole("janitor")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestSystemPermissions(t *testing.T) {
	tests := []struct {
		role   RoleName
		module Module
		op     Operation
		want   bool
	}{
		{RoleSuperAdmin, ModuleCMS, OpDelete, true},
		{RoleSuperAdmin, ModuleAudit, OpView, true},
		{RoleSuperAdmin, ModuleAudit, OpDelete, false},
		{RolePlatformStaff, ModuleAcademics, OpView, true},
		{RolePlatformStaff, ModuleAcademics, OpAdd, false},
		{RoleOrgAdmin, ModuleSchools, OpDelete, true},
		{RoleOrgAdmin, ModuleOrganizations, OpChange, true},
		{RoleOrgAdmin, ModuleOrganizations, OpDelete, false},
		{RoleOrgStaff, ModuleCMS, OpChange, true},
		{RoleOrgStaff, ModuleCMS, OpDelete, false},
		{RoleOrgStaff, ModuleCMS, OpPublish, false},
		{RoleSchoolAdmin, ModuleCMS, OpPublish, true},
		{RoleSchoolAdmin, ModuleOrganizations, OpView, true},
		{RoleSchoolAdmin, ModuleOrganizations, OpChange, false},
		{RoleSchoolStaff, ModuleAcademics, OpAdd, true},
		{RoleSchoolStaff, ModuleAcademics, OpDelete, false},
		{RoleSchoolStaff, ModuleOrganizations, OpChange, false},
		{RoleParent, ModuleAcademics, OpView, true},
		{RoleParent, ModuleAcademics, OpChange, false},
		{RoleParent, ModuleAdmissions, OpAdd, true},
		{RoleStudent, ModuleAcademics, OpView, true},
		{RoleStudent, ModuleAdmissions, OpView, false},
		{RoleStudent, ModuleAudit, OpView, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.module)+"/"+string(tt.op), func(t *testing.T) {
			role, err := SystemRole(tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, PermissionsFor(role, tt.module).Has(tt.op))
		})
	}
}

func TestSystemPermissions_RespectModuleCeiling(t *testing.T) {
	for _, role := range SystemRoles() {
		assert.True(t, role.Permissions.Within(moduleCeiling), "%s exceeds module ceiling", role.Name)
	}
}

func TestPermissionsFor_IgnoresStoredSystemPermissions(t *testing.T) {
	role, err := SystemRole(RoleStudent)
	require.NoError(t, err)
	role.Permissions = Permissions{ModuleAccounts: FullAccess}

	assert.Equal(t, ReadOnly, PermissionsFor(role, ModuleAccounts))
	assert.Equal(t, OperationSet(0), PermissionsFor(nil, ModuleAccounts))
}

func TestLevelCeiling(t *testing.T) {
	assert.Nil(t, LevelCeiling(LevelPlatform))
	assert.Equal(t, systemPermissions[RoleOrgAdmin], LevelCeiling(LevelOrganization))
	assert.Equal(t, systemPermissions[RoleSchoolAdmin], LevelCeiling(LevelSchool))
}
