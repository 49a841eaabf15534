package rbac

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FilterKind is the shape of the row filter a role receives for a resource type
type FilterKind string

const (
	FilterUnrestricted       FilterKind = "unrestricted"
	FilterOrganizationEquals FilterKind = "organization_equals"
	FilterSchoolEquals       FilterKind = "school_equals"
	FilterOwnedBy            FilterKind = "owned_by"
	FilterAssignedTo         FilterKind = "assigned_to"
)

// breadth orders filter kinds. For a fixed tenant scope a kind admits every
// instance admitted by any kind of lower breadth. Kinds of equal breadth are
// only comparable to themselves.
func (k FilterKind) breadth() int {
	switch k {
	case FilterUnrestricted:
		return 4
	case FilterOrganizationEquals:
		return 3
	case FilterSchoolEquals:
		return 2
	case FilterOwnedBy, FilterAssignedTo:
		return 1
	}
	return 0
}

// Covers reports whether k admits at least everything other admits
func (k FilterKind) Covers(other FilterKind) bool {
	if k == other {
		return k.breadth() > 0
	}
	return k.breadth() > other.breadth()
}

// seniority of the system roles; a higher value is strictly senior
var seniority = map[RoleName]int{
	RoleSuperAdmin:    7,
	RolePlatformStaff: 6,
	RoleOrgAdmin:      5,
	RoleOrgStaff:      4,
	RoleSchoolAdmin:   3,
	RoleSchoolStaff:   1,
	RoleParent:        1,
	RoleStudent:       1,
}

// scopeDefaults is the filter kind a role gets unless scopeOverrides names the resource type
var scopeDefaults = map[RoleName]FilterKind{
	RoleSuperAdmin:    FilterUnrestricted,
	RolePlatformStaff: FilterUnrestricted,
	RoleOrgAdmin:      FilterOrganizationEquals,
	RoleOrgStaff:      FilterOrganizationEquals,
	RoleSchoolAdmin:   FilterSchoolEquals,
	RoleSchoolStaff:   FilterSchoolEquals,
	RoleParent:        FilterOwnedBy,
	RoleStudent:       FilterOwnedBy,
}

// publicToSchool are resource types families read school-wide
var publicToSchool = []ResourceType{
	ResourcePage, ResourceSection, ResourceNavigationMenu, ResourceGallery, ResourceDocument,
	ResourceNews, ResourceEvent, ResourceAnnouncement,
	ResourceAcademicYear, ResourceSubject, ResourceSchool,
}

var scopeOverrides = map[RoleName]map[ResourceType]FilterKind{
	RoleSchoolAdmin: {
		ResourceOrganization: FilterOrganizationEquals,
		ResourceRole:         FilterOrganizationEquals,
	},
	RoleSchoolStaff: {
		ResourceOrganization:   FilterOrganizationEquals,
		ResourceRole:           FilterOrganizationEquals,
		ResourceClass:          FilterAssignedTo,
		ResourceStudent:        FilterAssignedTo,
		ResourceAttendance:     FilterAssignedTo,
		ResourceGrade:          FilterAssignedTo,
		ResourceRoleAssignment: FilterOwnedBy,
	},
	RoleParent:  familyOverrides(),
	RoleStudent: familyOverrides(),
}

func familyOverrides() map[ResourceType]FilterKind {
	m := map[ResourceType]FilterKind{ResourceOrganization: FilterOrganizationEquals}
	for _, rt := range publicToSchool {
		m[rt] = FilterSchoolEquals
	}
	return m
}

// customTemplates gives custom roles the scope row of their level's administrator
var customTemplates = map[Level]RoleName{
	LevelOrganization: RoleOrgAdmin,
	LevelSchool:       RoleSchoolAdmin,
}

// KindFor returns the filter kind of role for resource type rt.
// The mapping is a static table keyed by system role name.
func KindFor(role *Role, rt ResourceType) (FilterKind, error) {
	if !rt.Valid() {
		return "", fmt.Errorf("unknown resource type %q", rt)
	}
	name := role.Name
	if !role.IsSystem {
		template, ok := customTemplates[role.Level]
		if !ok {
			return "", fmt.Errorf("%w: custom role at %s level", ErrInvalidRole, role.Level)
		}
		name = template
	}
	return kindForName(name, rt)
}

func kindForName(name RoleName, rt ResourceType) (FilterKind, error) {
	if kind, ok := scopeOverrides[name][rt]; ok {
		return kind, nil
	}
	kind, ok := scopeDefaults[name]
	if !ok {
		return "", fmt.Errorf("%w: no scope row for %s", ErrRoleNotFound, name)
	}
	return kind, nil
}

// CheckMonotonic verifies that every strictly senior system role covers the filter kind of
// every junior role for every resource type.
func CheckMonotonic() error {
	names := SystemRoleNames()
	for _, senior := range names {
		for _, junior := range names {
			if seniority[senior] <= seniority[junior] {
				continue
			}
			for _, rt := range ResourceTypes() {
				sk, err := kindForName(senior, rt)
				if err != nil {
					return err
				}
				jk, err := kindForName(junior, rt)
				if err != nil {
					return err
				}
				if !sk.Covers(jk) {
					return fmt.Errorf("scope table not monotonic: %s has %s on %s but junior %s has %s",
						senior, sk, rt, junior, jk)
				}
			}
		}
	}
	return nil
}

// Senior reports whether a is strictly senior to b in the system role hierarchy
func Senior(a, b RoleName) bool {
	sa, okA := seniority[a]
	sb, okB := seniority[b]
	return okA && okB && sa > sb
}

// Instance describes a single record for scope checks
type Instance struct {
	ID             string       `json:"id"`
	Type           ResourceType `json:"type"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	SchoolID       *uuid.UUID   `json:"school_id,omitempty"`
	// Owners are the principals a record belongs to: a parent's children, a student's own record
	Owners []uuid.UUID `json:"owners,omitempty"`
	// Assignees are the staff a record is assigned to, such as a class teacher
	Assignees []uuid.UUID `json:"assignees,omitempty"`
}

// ScopeFilter is a concrete filter bound to a principal's tenant scope
type ScopeFilter struct {
	Kind           FilterKind `json:"kind"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	SchoolID       *uuid.UUID `json:"school_id,omitempty"`
	PrincipalID    *uuid.UUID `json:"principal_id,omitempty"`
}

// FilterFor binds the filter kind of the effective role to its scope
func FilterFor(er *EffectiveRole, rt ResourceType) (ScopeFilter, error) {
	kind, err := KindFor(er.Role, rt)
	if err != nil {
		return ScopeFilter{}, err
	}
	return NewScopeFilter(kind, er.OrganizationID, er.SchoolID, er.PrincipalID), nil
}

// NewScopeFilter builds a filter, keeping only the parameters the kind needs
func NewScopeFilter(kind FilterKind, orgID, schoolID *uuid.UUID, principalID uuid.UUID) ScopeFilter {
	f := ScopeFilter{Kind: kind}
	if kind == FilterUnrestricted {
		return f
	}
	f.OrganizationID = orgID
	if kind != FilterOrganizationEquals {
		f.SchoolID = schoolID
	}
	if kind == FilterOwnedBy || kind == FilterAssignedTo {
		id := principalID
		f.PrincipalID = &id
	}
	return f
}

// Admits reports whether the filter admits inst. Every kind narrower than
// unrestricted also requires the organization and, when bound, the school to
// match, which keeps broader kinds supersets of narrower ones.
func (f ScopeFilter) Admits(inst Instance) bool {
	if f.Kind == FilterUnrestricted {
		return true
	}
	if f.OrganizationID == nil || inst.OrganizationID != *f.OrganizationID {
		return false
	}

	switch f.Kind {
	case FilterOrganizationEquals:
		return true
	case FilterSchoolEquals:
		return f.SchoolID != nil && f.inSchool(inst)
	case FilterOwnedBy:
		return f.inSchool(inst) && f.PrincipalID != nil && containsID(inst.Owners, *f.PrincipalID)
	case FilterAssignedTo:
		return f.inSchool(inst) && f.PrincipalID != nil && containsID(inst.Assignees, *f.PrincipalID)
	}
	return false
}

func (f ScopeFilter) inSchool(inst Instance) bool {
	if f.SchoolID == nil {
		return true
	}
	return inst.SchoolID != nil && *inst.SchoolID == *f.SchoolID
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Columns names the columns a domain query exposes to Clause
type Columns struct {
	Organization string
	School       string
	// Owner and Assignee are uuid[] columns; empty means the table has no such relation
	Owner    string
	Assignee string
}

// Clause renders the filter as a SQL predicate with numbered placeholders starting at argStart.
// Kinds the table cannot express render as FALSE.
func (f ScopeFilter) Clause(cols Columns, argStart int) (string, []interface{}) {
	if f.Kind == FilterUnrestricted {
		return "TRUE", nil
	}
	if f.OrganizationID == nil || cols.Organization == "" {
		return "FALSE", nil
	}

	var parts []string
	var args []interface{}
	add := func(format string, arg interface{}) {
		parts = append(parts, fmt.Sprintf(format, argStart+len(args)))
		args = append(args, arg)
	}

	add(cols.Organization+" = $%d", *f.OrganizationID)

	switch f.Kind {
	case FilterOrganizationEquals:
	case FilterSchoolEquals:
		if f.SchoolID == nil || cols.School == "" {
			return "FALSE", nil
		}
		add(cols.School+" = $%d", *f.SchoolID)
	case FilterOwnedBy, FilterAssignedTo:
		column := cols.Owner
		if f.Kind == FilterAssignedTo {
			column = cols.Assignee
		}
		if column == "" || f.PrincipalID == nil {
			return "FALSE", nil
		}
		if f.SchoolID != nil {
			if cols.School == "" {
				return "FALSE", nil
			}
			add(cols.School+" = $%d", *f.SchoolID)
		}
		add("$%d = ANY("+column+")", *f.PrincipalID)
	default:
		return "FALSE", nil
	}

	return "(" + strings.Join(parts, " AND ") + ")", args
}
