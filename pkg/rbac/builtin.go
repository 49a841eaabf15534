package rbac

import (
	"fmt"

	"github.com/google/uuid"
)

// systemRoleNamespace seeds deterministic system role IDs so every deployment agrees on them
var systemRoleNamespace = uuid.MustParse("6f1c9a52-3c1e-4b8e-9d7a-2f4c1b0e8a11")

// moduleCeiling caps what any role can hold on a module. Audit events are append-only.
var moduleCeiling = Permissions{
	ModuleCMS:            FullAccess,
	ModuleAcademics:      FullAccess,
	ModuleCommunications: FullAccess,
	ModuleAccounts:       FullAccess,
	ModuleOrganizations:  FullAccess,
	ModuleSchools:        FullAccess,
	ModuleAudit:          ReadOnly,
	ModuleAdmissions:     FullAccess,
	ModuleTransfers:      FullAccess,
}

func grantAll(ops OperationSet) Permissions {
	p := make(Permissions, len(moduleCeiling))
	for module, ceiling := range moduleCeiling {
		p[module] = ops & ceiling
	}
	return p
}

// Limited write for staff roles is view, add and change: no delete, no publish.
var systemPermissions = map[RoleName]Permissions{
	RoleSuperAdmin:    grantAll(FullAccess),
	RolePlatformStaff: grantAll(ReadOnly),
	RoleOrgAdmin: {
		ModuleCMS:            FullAccess,
		ModuleAcademics:      FullAccess,
		ModuleCommunications: FullAccess,
		ModuleAccounts:       FullAccess,
		ModuleOrganizations:  Ops(OpView, OpChange),
		ModuleSchools:        FullAccess,
		ModuleAudit:          ReadOnly,
		ModuleAdmissions:     FullAccess,
		ModuleTransfers:      FullAccess,
	},
	RoleOrgStaff: {
		ModuleCMS:            LimitedWrite,
		ModuleAcademics:      LimitedWrite,
		ModuleCommunications: LimitedWrite,
		ModuleAccounts:       ReadOnly,
		ModuleOrganizations:  ReadOnly,
		ModuleSchools:        ReadOnly,
		ModuleAdmissions:     LimitedWrite,
		ModuleTransfers:      LimitedWrite,
	},
	RoleSchoolAdmin: {
		ModuleCMS:            FullAccess,
		ModuleAcademics:      FullAccess,
		ModuleCommunications: FullAccess,
		ModuleAccounts:       FullAccess,
		ModuleOrganizations:  ReadOnly,
		ModuleSchools:        Ops(OpView, OpChange, OpPublish),
		ModuleAudit:          ReadOnly,
		ModuleAdmissions:     FullAccess,
		ModuleTransfers:      FullAccess,
	},
	RoleSchoolStaff: {
		ModuleCMS:            LimitedWrite,
		ModuleAcademics:      LimitedWrite,
		ModuleCommunications: LimitedWrite,
		ModuleAccounts:       ReadOnly,
		ModuleOrganizations:  ReadOnly,
		ModuleSchools:        ReadOnly,
		ModuleAdmissions:     LimitedWrite,
		ModuleTransfers:      ReadOnly,
	},
	RoleParent: {
		ModuleCMS:            ReadOnly,
		ModuleAcademics:      ReadOnly,
		ModuleCommunications: ReadOnly,
		ModuleAccounts:       ReadOnly,
		ModuleOrganizations:  ReadOnly,
		ModuleSchools:        ReadOnly,
		ModuleAdmissions:     LimitedWrite,
		ModuleTransfers:      ReadOnly,
	},
	RoleStudent: {
		ModuleCMS:            ReadOnly,
		ModuleAcademics:      ReadOnly,
		ModuleCommunications: ReadOnly,
		ModuleAccounts:       ReadOnly,
		ModuleOrganizations:  ReadOnly,
		ModuleSchools:        ReadOnly,
	},
}

var systemLevels = map[RoleName]Level{
	RoleSuperAdmin:    LevelPlatform,
	RolePlatformStaff: LevelPlatform,
	RoleOrgAdmin:      LevelOrganization,
	RoleOrgStaff:      LevelOrganization,
	RoleSchoolAdmin:   LevelSchool,
	RoleSchoolStaff:   LevelSchool,
	RoleParent:        LevelSchool,
	RoleStudent:       LevelSchool,
}

var systemDisplayNames = map[RoleName]string{
	RoleSuperAdmin:    "Super Administrator",
	RolePlatformStaff: "Platform Staff",
	RoleOrgAdmin:      "Organization Administrator",
	RoleOrgStaff:      "Organization Staff",
	RoleSchoolAdmin:   "School Administrator",
	RoleSchoolStaff:   "School Staff",
	RoleParent:        "Parent",
	RoleStudent:       "Student",
}

// SystemRoleNames returns the built-in roles from most to least senior
func SystemRoleNames() []RoleName {
	return []RoleName{
		RoleSuperAdmin, RolePlatformStaff, RoleOrgAdmin, RoleOrgStaff,
		RoleSchoolAdmin, RoleSchoolStaff, RoleParent, RoleStudent,
	}
}

// IsSystem reports whether the name is reserved for a built-in role
func (n RoleName) IsSystem() bool {
	_, ok := systemLevels[n]
	return ok
}

// SystemRoleID returns the fixed ID of a built-in role
func SystemRoleID(name RoleName) uuid.UUID {
	return uuid.NewSHA1(systemRoleNamespace, []byte("role/"+string(name)))
}

// SystemRole returns a fresh copy of a built-in role
func SystemRole(name RoleName) (*Role, error) {
	level, ok := systemLevels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return &Role{
		ID:          SystemRoleID(name),
		Name:        name,
		DisplayName: systemDisplayNames[name],
		Level:       level,
		Permissions: copyPermissions(systemPermissions[name]),
		IsSystem:    true,
		IsActive:    true,
	}, nil
}

// SystemRoles returns copies of every built-in role
func SystemRoles() []*Role {
	roles := make([]*Role, 0, len(systemLevels))
	for _, name := range SystemRoleNames() {
		role, _ := SystemRole(name)
		roles = append(roles, role)
	}
	return roles
}

// LevelCeiling is the most a custom role at level may grant
func LevelCeiling(level Level) Permissions {
	switch level {
	case LevelOrganization:
		return systemPermissions[RoleOrgAdmin]
	case LevelSchool:
		return systemPermissions[RoleSchoolAdmin]
	}
	return nil
}

func copyPermissions(p Permissions) Permissions {
	out := make(Permissions, len(p))
	for module, ops := range p {
		out[module] = ops
	}
	return out
}
