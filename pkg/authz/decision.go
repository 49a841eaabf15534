package authz

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

var (
	ErrActionNotGranted = errors.New("action not granted")
	ErrOutsideScope     = errors.New("outside scope")
)

// Reason is the internal code of a denial. It is recorded in the audit trail
// and never sent to clients.
type Reason string

const (
	ReasonNoRoleInScope    Reason = "no_role_in_scope"
	ReasonActionNotGranted Reason = "action_not_granted"
	ReasonOutsideScope     Reason = "outside_scope"
)

// ForbiddenError is returned for every denied decision
type ForbiddenError struct {
	Reason Reason
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Unwrap exposes the sentinel of the reason so callers can use errors.Is
func (e *ForbiddenError) Unwrap() error {
	switch e.Reason {
	case ReasonNoRoleInScope:
		return rbac.ErrNoRoleInScope
	case ReasonActionNotGranted:
		return ErrActionNotGranted
	case ReasonOutsideScope:
		return ErrOutsideScope
	}
	return nil
}

// IsForbidden reports whether err is a denial of any reason
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// Request is everything a decision depends on
type Request struct {
	PrincipalID uuid.UUID
	// Role is the effective role; nil when the principal has no role in scope
	Role *rbac.EffectiveRole
	// Tenant is the resolved tenant; nil for platform requests
	Tenant   *tenants.Context
	Action   rbac.Operation
	Resource rbac.ResourceType
	// Instance is the target record, nil for type-level checks such as listing or creating
	Instance *rbac.Instance
}

// Decision is the outcome of Decide
type Decision struct {
	Allowed bool
	Reason  Reason
	Module  rbac.Module
	// Filter is the scope filter that was applied, set once the action check passed
	Filter *rbac.ScopeFilter
}

// Err returns nil for an allow and a *ForbiddenError for a deny
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ForbiddenError{Reason: d.Reason}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Decide answers whether the request may proceed. It has no side effects.
//
// Checks run in a fixed order: a missing role, the tenant boundary, the
// action grant of the resource's module, then the scope filter against the
// instance. The tenant boundary comes before the action grant so any access
// across organizations reports outside_scope whatever the action.
func Decide(req Request) Decision {
	er := req.Role
	if er == nil || er.Role == nil || er.PrincipalID != req.PrincipalID {
		return deny(ReasonNoRoleInScope)
	}

	if !withinTenant(er, req) {
		return deny(ReasonOutsideScope)
	}

	module, err := rbac.ModuleOf(req.Resource)
	if err != nil {
		return deny(ReasonActionNotGranted)
	}
	if !rbac.PermissionsFor(er.Role, module).Has(req.Action) {
		return Decision{Reason: ReasonActionNotGranted, Module: module}
	}

	filter, err := rbac.FilterFor(er, req.Resource)
	if err != nil {
		return Decision{Reason: ReasonOutsideScope, Module: module}
	}
	if req.Instance != nil && !filter.Admits(*req.Instance) {
		return Decision{Reason: ReasonOutsideScope, Module: module, Filter: &filter}
	}
	return Decision{Allowed: true, Module: module, Filter: &filter}
}

// withinTenant rejects tenant roles acting on another organization, either
// through the resolved tenant or through the target instance
func withinTenant(er *rbac.EffectiveRole, req Request) bool {
	if er.IsPlatform() {
		return true
	}
	if er.OrganizationID == nil {
		return false
	}
	if req.Tenant != nil && req.Tenant.Organization != nil && req.Tenant.Organization.ID != *er.OrganizationID {
		return false
	}
	if req.Instance != nil && req.Instance.OrganizationID != *er.OrganizationID {
		return false
	}
	return true
}
