package rbac

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoRoleInScope means the principal holds no assignment matching the tenant scope.
	// Callers must treat it as "no access".
	ErrNoRoleInScope = errors.New("no role in scope")

	ErrRoleNotFound        = errors.New("role not found")
	ErrAssignmentNotFound  = errors.New("role assignment not found")
	ErrSystemRoleImmutable = errors.New("system roles cannot be modified")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidAssignment   = errors.New("invalid role assignment")
)

// Level is the tier a role is scoped to. Lower levels take precedence when
// a principal holds several matching assignments.
type Level int

const (
	LevelSchool       Level = 1
	LevelOrganization Level = 2
	LevelPlatform     Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelSchool:
		return "school"
	case LevelOrganization:
		return "organization"
	case LevelPlatform:
		return "platform"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses a level name
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "school":
		return LevelSchool, nil
	case "organization", "org":
		return LevelOrganization, nil
	case "platform":
		return LevelPlatform, nil
	}
	return 0, fmt.Errorf("unknown role level %q", s)
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// RoleName identifies a role within its organization; system role names are reserved
type RoleName string

const (
	RoleSuperAdmin    RoleName = "super_admin"
	RolePlatformStaff RoleName = "platform_staff"
	RoleOrgAdmin      RoleName = "org_admin"
	RoleOrgStaff      RoleName = "org_staff"
	RoleSchoolAdmin   RoleName = "school_admin"
	RoleSchoolStaff   RoleName = "school_staff"
	RoleParent        RoleName = "parent"
	RoleStudent       RoleName = "student"
)

// Module groups resource types for permission purposes
type Module string

const (
	ModuleCMS            Module = "cms"
	ModuleAcademics      Module = "academics"
	ModuleCommunications Module = "communications"
	ModuleAccounts       Module = "accounts"
	ModuleOrganizations  Module = "organizations"
	ModuleSchools        Module = "schools"
	ModuleAudit          Module = "audit"
	ModuleAdmissions     Module = "admissions"
	ModuleTransfers      Module = "transfers"
)

// AllModules returns every module in display order
func AllModules() []Module {
	return []Module{
		ModuleCMS, ModuleAcademics, ModuleCommunications, ModuleAccounts,
		ModuleOrganizations, ModuleSchools, ModuleAudit, ModuleAdmissions, ModuleTransfers,
	}
}

// Valid reports whether m is a known module
func (m Module) Valid() bool {
	for _, known := range AllModules() {
		if m == known {
			return true
		}
	}
	return false
}

// Operation is an action a role may perform on a module
type Operation string

const (
	OpView    Operation = "view"
	OpAdd     Operation = "add"
	OpChange  Operation = "change"
	OpDelete  Operation = "delete"
	OpPublish Operation = "publish"
)

// AllOperations returns every operation in display order
func AllOperations() []Operation {
	return []Operation{OpView, OpAdd, OpChange, OpDelete, OpPublish}
}

// Mutates reports whether the operation changes state
func (o Operation) Mutates() bool {
	return o != OpView
}

func (o Operation) bit() OperationSet {
	for i, op := range AllOperations() {
		if op == o {
			return 1 << i
		}
	}
	return 0
}

// ParseOperation parses an operation name
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(s))
	if op.bit() == 0 {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// OperationSet is a set of operations. It encodes to JSON as a sorted list of names.
type OperationSet uint8

// Ops builds a set from operations
func Ops(ops ...Operation) OperationSet {
	var s OperationSet
	for _, op := range ops {
		s |= op.bit()
	}
	return s
}

const (
	ReadOnly     = OperationSet(1 << 0)
	LimitedWrite = OperationSet(1<<0 | 1<<1 | 1<<2)
	FullAccess   = OperationSet(1<<5 - 1)
)

// Has reports whether op is in the set
func (s OperationSet) Has(op Operation) bool {
	bit := op.bit()
	return bit != 0 && s&bit == bit
}

// Contains reports whether every operation of other is in s
func (s OperationSet) Contains(other OperationSet) bool {
	return s&other == other
}

// List returns the operations of the set in display order
func (s OperationSet) List() []Operation {
	var out []Operation
	for _, op := range AllOperations() {
		if s.Has(op) {
			out = append(out, op)
		}
	}
	return out
}

func (s OperationSet) String() string {
	names := make([]string, 0, 5)
	for _, op := range s.List() {
		names = append(names, string(op))
	}
	return strings.Join(names, ",")
}

func (s OperationSet) MarshalJSON() ([]byte, error) {
	ops := s.List()
	if ops == nil {
		ops = []Operation{}
	}
	return json.Marshal(ops)
}

func (s *OperationSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var set OperationSet
	for _, name := range names {
		op, err := ParseOperation(name)
		if err != nil {
			return err
		}
		set |= op.bit()
	}
	*s = set
	return nil
}

// Permissions maps modules to the operations a role grants on them
type Permissions map[Module]OperationSet

// Allows reports whether op is granted on module
func (p Permissions) Allows(module Module, op Operation) bool {
	return p[module].Has(op)
}

// Validate rejects unknown modules
func (p Permissions) Validate() error {
	for module := range p {
		if !module.Valid() {
			return fmt.Errorf("%w: unknown module %q", ErrInvalidRole, module)
		}
	}
	return nil
}

// Within reports whether every grant of p is also granted by ceiling
func (p Permissions) Within(ceiling Permissions) bool {
	for module, ops := range p {
		if !ceiling[module].Contains(ops) {
			return false
		}
	}
	return true
}

// Modules returns the modules with at least one granted operation, sorted
func (p Permissions) Modules() []Module {
	var out []Module
	for module, ops := range p {
		if ops != 0 {
			out = append(out, module)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Role is a named permission set scoped to a level
type Role struct {
	ID             uuid.UUID   `json:"id"`
	Name           RoleName    `json:"name"`
	DisplayName    string      `json:"display_name"`
	Description    string      `json:"description,omitempty"`
	OrganizationID *uuid.UUID  `json:"organization_id,omitempty"`
	Level          Level       `json:"level"`
	Permissions    Permissions `json:"permissions"`
	IsSystem       bool        `json:"is_system"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CreatedBy      *uuid.UUID  `json:"created_by,omitempty"`
}

// RoleAssignment grants a role to a principal within a tenant scope.
// Platform assignments carry no organization, school assignments carry both IDs.
type RoleAssignment struct {
	ID             uuid.UUID  `json:"id"`
	PrincipalID    uuid.UUID  `json:"principal_id"`
	RoleID         uuid.UUID  `json:"role_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	SchoolID       *uuid.UUID `json:"school_id,omitempty"`
	// IsActive marks the preferred assignment when several match the same scope
	IsActive  bool       `json:"is_active"`
	GrantedAt time.Time  `json:"granted_at"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// Role is populated by stores that join the role row
	Role *Role `json:"role,omitempty"`
}

// MemberInstance is the principal's user_profile as seen through this
// assignment: owned by the principal, placed at the assignment's scope
func (a *RoleAssignment) MemberInstance() Instance {
	inst := Instance{
		ID:       a.PrincipalID.String(),
		Type:     ResourceUserProfile,
		SchoolID: a.SchoolID,
		Owners:   []uuid.UUID{a.PrincipalID},
	}
	if a.OrganizationID != nil {
		inst.OrganizationID = *a.OrganizationID
	}
	return inst
}

// TenantScope is the tenant context roles are matched against
type TenantScope struct {
	OrganizationID *uuid.UUID
	SchoolID       *uuid.UUID
}

// EffectiveRole is the single role context of a request
type EffectiveRole struct {
	PrincipalID    uuid.UUID       `json:"principal_id"`
	Role           *Role           `json:"role"`
	Assignment     *RoleAssignment `json:"assignment"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty"`
	SchoolID       *uuid.UUID      `json:"school_id,omitempty"`
}

// Level returns the level of the effective role
func (e *EffectiveRole) Level() Level {
	return e.Role.Level
}

// IsPlatform reports whether the role crosses tenant boundaries
func (e *EffectiveRole) IsPlatform() bool {
	return e.Role.Level == LevelPlatform
}
