package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/middleware"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// RoleHandlers manages custom roles and role assignments of the resolved organization
type RoleHandlers struct {
	roles *rbac.Registry
	point *authz.DecisionPoint
}

// NewRoleHandlers creates a new RoleHandlers
func NewRoleHandlers(roles *rbac.Registry, point *authz.DecisionPoint) *RoleHandlers {
	return &RoleHandlers{roles: roles, point: point}
}

// RegisterRoutes registers role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/roles", middleware.RequirePermission(h.point, rbac.OpView, rbac.ResourceRole)(http.HandlerFunc(h.ListRoles))).
		Methods(http.MethodGet)
	router.HandleFunc("/roles", h.CreateRole).Methods(http.MethodPost)
	router.HandleFunc("/roles/{id}", h.GetRole).Methods(http.MethodGet)
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods(http.MethodPut)
	router.HandleFunc("/roles/{id}", h.DeactivateRole).Methods(http.MethodDelete)

	router.HandleFunc("/role-assignments", h.Assign).Methods(http.MethodPost)
	router.HandleFunc("/role-assignments/{id}", h.Revoke).Methods(http.MethodDelete)

	// Own assignments need no grant
	router.HandleFunc("/me/role-assignments", h.ListMine).Methods(http.MethodGet)
	router.HandleFunc("/me/role-assignments/{id}/activate", h.ActivateMine).Methods(http.MethodPost)
}

// RoleRequest is the body of POST /roles and PUT /roles/{id}. Name and level
// are fixed once a role exists.
type RoleRequest struct {
	Name        rbac.RoleName    `json:"name"`
	DisplayName string           `json:"display_name"`
	Description string           `json:"description,omitempty"`
	Level       rbac.Level       `json:"level"`
	Permissions rbac.Permissions `json:"permissions"`
}

// AssignRequest is the body of POST /role-assignments. The organization is
// always the resolved tenant.
type AssignRequest struct {
	PrincipalID uuid.UUID  `json:"principal_id"`
	RoleID      uuid.UUID  `json:"role_id"`
	SchoolID    *uuid.UUID `json:"school_id,omitempty"`
	IsActive    bool       `json:"is_active"`
}

func (h *RoleHandlers) authorize(r *http.Request, action rbac.Operation, rt rbac.ResourceType, inst *rbac.Instance) error {
	return h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), action, rt, inst))
}

// ListRoles lists the system roles and the organization's custom roles.
// The route is gated on view access to roles.
func (h *RoleHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	roles, err := h.roles.ListRoles(r.Context(), tc.Organization.ID)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole defines a custom role in the organization
func (h *RoleHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	orgID := tc.Organization.ID
	if err := h.authorize(r, rbac.OpAdd, rbac.ResourceRole, &rbac.Instance{Type: rbac.ResourceRole, OrganizationID: orgID}); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	role := &rbac.Role{
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		OrganizationID: &orgID,
		Level:          req.Level,
		Permissions:    req.Permissions,
	}
	if creator := principalOf(r); creator != uuid.Nil {
		role.CreatedBy = &creator
	}
	if err := h.roles.CreateCustomRole(r.Context(), role); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeRoleCreate, &orgID, rbac.ResourceRole, role.ID.String(), nil)
	httputil.WriteCreated(w, role)
}

// loadRole fetches a system role or a custom role of the resolved
// organization and authorizes action on it
func (h *RoleHandlers) loadRole(r *http.Request, action rbac.Operation) (*rbac.Role, error) {
	tc, err := tenantOf(r)
	if err != nil {
		return nil, err
	}
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		return nil, rbac.ErrRoleNotFound
	}
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if role.OrganizationID != nil && *role.OrganizationID != tc.Organization.ID {
		return nil, rbac.ErrRoleNotFound
	}
	inst := &rbac.Instance{ID: role.ID.String(), Type: rbac.ResourceRole, OrganizationID: tc.Organization.ID}
	if err := h.authorize(r, action, rbac.ResourceRole, inst); err != nil {
		return nil, hideOutside(err, rbac.ErrRoleNotFound)
	}
	return role, nil
}

// GetRole returns a role
func (h *RoleHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.loadRole(r, rbac.OpView)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole replaces the display fields and permissions of a custom role
func (h *RoleHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.loadRole(r, rbac.OpChange)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before := role.Permissions
	role.DisplayName = req.DisplayName
	role.Description = req.Description
	role.Permissions = req.Permissions
	if err := h.roles.UpdateCustomRole(r.Context(), role); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeRoleUpdate, role.OrganizationID, rbac.ResourceRole, role.ID.String(), &audit.ChangeDetails{
		Before: map[string]interface{}{"permissions": before},
		After:  map[string]interface{}{"permissions": role.Permissions},
	})
	httputil.WriteSuccess(w, role)
}

// DeactivateRole disables a custom role
func (h *RoleHandlers) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.loadRole(r, rbac.OpDelete)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if err := h.roles.DeactivateCustomRole(r.Context(), role.ID); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeRoleDeactivate, role.OrganizationID, rbac.ResourceRole, role.ID.String(), nil)
	httputil.WriteNoContent(w)
}

// Assign grants a role within the organization. Callers cannot grant a
// role of a higher level than the one they act under.
func (h *RoleHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req AssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	orgID := tc.Organization.ID
	inst := &rbac.Instance{Type: rbac.ResourceRoleAssignment, OrganizationID: orgID, SchoolID: req.SchoolID}
	if err := h.authorize(r, rbac.OpAdd, rbac.ResourceRoleAssignment, inst); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	role, err := h.roles.GetRole(r.Context(), req.RoleID)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if err := checkGrant(r, role); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	a := &rbac.RoleAssignment{
		PrincipalID:    req.PrincipalID,
		RoleID:         req.RoleID,
		OrganizationID: &orgID,
		SchoolID:       req.SchoolID,
		IsActive:       req.IsActive,
	}
	if granter := principalOf(r); granter != uuid.Nil {
		a.GrantedBy = &granter
	}
	if err := h.roles.Assign(r.Context(), a); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeRoleAssign, &orgID, rbac.ResourceRoleAssignment, a.ID.String(), &audit.ChangeDetails{
		After: map[string]interface{}{"principal_id": a.PrincipalID.String(), "role": string(role.Name)},
	})
	httputil.WriteCreated(w, a)
}

// checkGrant rejects roles above the level or seniority of the caller's own
// role. Platform roles may grant anything.
func checkGrant(r *http.Request, role *rbac.Role) error {
	er, ok := rbac.EffectiveRoleFromContext(r.Context())
	if !ok || er.IsPlatform() {
		return nil
	}
	if role.Level > er.Level() || (role.IsSystem && er.Role.IsSystem && rbac.Senior(role.Name, er.Role.Name)) {
		return fmt.Errorf("%w: cannot grant %s", rbac.ErrInvalidAssignment, role.Name)
	}
	return nil
}

// Revoke ends an assignment of the organization
func (h *RoleHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, rbac.ErrAssignmentNotFound)
		return
	}
	a, err := h.roles.GetAssignment(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if a.OrganizationID == nil || *a.OrganizationID != tc.Organization.ID {
		httputil.WriteAccessError(w, r, rbac.ErrAssignmentNotFound)
		return
	}

	inst := &rbac.Instance{
		ID:             a.ID.String(),
		Type:           rbac.ResourceRoleAssignment,
		OrganizationID: *a.OrganizationID,
		SchoolID:       a.SchoolID,
	}
	if err := h.authorize(r, rbac.OpDelete, rbac.ResourceRoleAssignment, inst); err != nil {
		httputil.WriteAccessError(w, r, hideOutside(err, rbac.ErrAssignmentNotFound))
		return
	}
	if err := h.roles.Revoke(r.Context(), a.ID); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeRoleRevoke, a.OrganizationID, rbac.ResourceRoleAssignment, a.ID.String(), nil)
	httputil.WriteNoContent(w)
}

// ListMine returns the caller's live role assignments
func (h *RoleHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.roles.ListAssignments(r.Context(), principalOf(r))
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// ActivateMine marks one of the caller's assignments as preferred
func (h *RoleHandlers) ActivateMine(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, rbac.ErrAssignmentNotFound)
		return
	}
	principalID := principalOf(r)
	a, err := h.roles.GetAssignment(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if a.PrincipalID != principalID || a.RevokedAt != nil {
		httputil.WriteAccessError(w, r, rbac.ErrAssignmentNotFound)
		return
	}
	if err := h.roles.Activate(r.Context(), principalID, a.ID); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
