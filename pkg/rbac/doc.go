// Package rbac provides the role model of the campus access layer.
//
// # Overview
//
// Every request acts under exactly one effective role. A principal may hold many
// role assignments across organizations and schools; the registry picks the one
// that matches the resolved tenant scope.
//
// The model has four parts:
//
//  1. Levels: school, organization and platform. Lower levels take precedence.
//  2. Modules and operations: a role grants a set of operations (view, add,
//     change, delete, publish) per module.
//  3. Roles: the eight system roles plus custom roles defined by organizations.
//  4. Assignments: bindings of a role to a principal within a tenant scope.
//
// # System Roles
//
//	super_admin     platform      everything, audit read-only
//	platform_staff  platform      read-only everywhere
//	org_admin       organization  full access inside one organization
//	org_staff       organization  limited write inside one organization
//	school_admin    school        full access inside one school
//	school_staff    school        limited write, assigned records only for academics
//	parent          school        own children, school-wide public content
//	student         school        own records, school-wide public content
//
// System role permissions come from a built-in table and are never read from
// storage. Custom roles are capped by the administrator role of their level.
//
// # Scope Filters
//
// For each role and resource type a static table names the filter kind that
// bounds which records the role sees:
//
//	filter, err := rbac.FilterFor(effective, rbac.ResourceStudent)
//	clause, args := filter.Clause(rbac.Columns{
//		Organization: "organization_id",
//		School:       "school_id",
//		Assignee:     "teacher_ids",
//	}, 1)
//
// The table is monotonic: a strictly senior role never sees fewer records than
// a junior one in the same scope. CheckMonotonic verifies that at startup.
//
// # Selecting the Effective Role
//
//	registry := rbac.NewRegistry(rbac.NewSQLStore(db))
//	effective, err := registry.EffectiveRole(ctx, principalID, rbac.ScopeOf(tenant), nil)
//	if errors.Is(err, rbac.ErrNoRoleInScope) {
//		// deny
//	}
package rbac
