package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// UserHandlers manages the principals of the resolved organization. A
// principal belongs to an organization through its role assignments there.
type UserHandlers struct {
	auth  *auth.Authenticator
	roles *rbac.Registry
	point *authz.DecisionPoint
}

// NewUserHandlers creates a new UserHandlers
func NewUserHandlers(authenticator *auth.Authenticator, roles *rbac.Registry, point *authz.DecisionPoint) *UserHandlers {
	return &UserHandlers{auth: authenticator, roles: roles, point: point}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	router.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}", h.UpdateUser).Methods(http.MethodPatch)
	router.HandleFunc("/users/{id}/deactivate", h.DeactivateUser).Methods(http.MethodPost)
}

// CreateUserRequest is the body of POST /users. The new principal is granted
// RoleID in the resolved organization, at SchoolID for school-level roles.
type CreateUserRequest struct {
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Password string     `json:"password"`
	RoleID   uuid.UUID  `json:"role_id"`
	SchoolID *uuid.UUID `json:"school_id,omitempty"`
}

// UpdateUserRequest is the body of PATCH /users/{id}
type UpdateUserRequest struct {
	FullName string `json:"full_name"`
}

// ListUsers lists the members of the organization the caller can see
func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter, err := h.point.ScopeFilter(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpView, rbac.ResourceUserProfile, nil))
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	members, err := h.roles.Members(r.Context(), filter)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	byPrincipal := make(map[uuid.UUID][]*rbac.RoleAssignment)
	var ids []uuid.UUID
	for _, a := range members {
		if _, seen := byPrincipal[a.PrincipalID]; !seen {
			ids = append(ids, a.PrincipalID)
		}
		byPrincipal[a.PrincipalID] = append(byPrincipal[a.PrincipalID], a)
	}
	principals, err := h.auth.ListPrincipals(r.Context(), ids)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	users := make([]UserResponse, 0, len(principals))
	for _, p := range principals {
		users = append(users, UserResponse{Principal: p, RoleAssignments: byPrincipal[p.ID]})
	}
	httputil.WriteSuccess(w, users)
}

// CreateUser registers a principal and grants it a role in the organization
func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.RoleID == uuid.Nil {
		httputil.WriteBadRequest(w, "email and role_id are required")
		return
	}

	orgID := tc.Organization.ID
	for _, rt := range []rbac.ResourceType{rbac.ResourceUserProfile, rbac.ResourceRoleAssignment} {
		inst := &rbac.Instance{Type: rt, OrganizationID: orgID, SchoolID: req.SchoolID}
		if err := h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpAdd, rt, inst)); err != nil {
			httputil.WriteAccessError(w, r, err)
			return
		}
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

	principal, err := h.auth.Register(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	a := &rbac.RoleAssignment{
		PrincipalID:    principal.ID,
		RoleID:         role.ID,
		OrganizationID: &orgID,
		SchoolID:       req.SchoolID,
		IsActive:       true,
	}
	if granter := principalOf(r); granter != uuid.Nil {
		a.GrantedBy = &granter
	}
	if err := h.roles.Assign(r.Context(), a); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	record(r, audit.EventTypePrincipalCreate, &orgID, rbac.ResourceUserProfile, principal.ID.String(), &audit.ChangeDetails{
		After: map[string]interface{}{"email": principal.Email, "role": string(role.Name)},
	})
	httputil.WriteCreated(w, UserResponse{Principal: principal, RoleAssignments: []*rbac.RoleAssignment{a}})
}

// member loads a principal of the resolved organization and authorizes
// action on its profile. Principals the caller cannot see are reported missing.
func (h *UserHandlers) member(r *http.Request, action rbac.Operation) (*auth.Principal, []*rbac.RoleAssignment, error) {
	tc, err := tenantOf(r)
	if err != nil {
		return nil, nil, err
	}
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		return nil, nil, auth.ErrPrincipalNotFound
	}

	all, err := h.roles.ListAssignments(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	var inOrg []*rbac.RoleAssignment
	for _, a := range all {
		if a.OrganizationID != nil && *a.OrganizationID == tc.Organization.ID {
			inOrg = append(inOrg, a)
		}
	}
	if len(inOrg) == 0 {
		return nil, nil, auth.ErrPrincipalNotFound
	}

	inst := memberInstance(inOrg)
	if err := h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), action, rbac.ResourceUserProfile, &inst)); err != nil {
		return nil, nil, hideOutside(err, auth.ErrPrincipalNotFound)
	}
	p, err := h.auth.Principal(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	return p, inOrg, nil
}

// memberInstance places a principal at its organization-level assignment if
// it has one, else at the school of its earliest assignment
func memberInstance(assignments []*rbac.RoleAssignment) rbac.Instance {
	for _, a := range assignments {
		if a.SchoolID == nil {
			return a.MemberInstance()
		}
	}
	return assignments[0].MemberInstance()
}

// GetUser returns a member with its assignments in the organization
func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	p, assignments, err := h.member(r, rbac.OpView)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, UserResponse{Principal: p, RoleAssignments: assignments})
}

// UpdateUser changes a member's display name
func (h *UserHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, assignments, err := h.member(r, rbac.OpChange)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before := p.FullName
	updated, err := h.auth.UpdateProfile(r.Context(), p.ID, strings.TrimSpace(req.FullName))
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypePrincipalUpdate, assignments[0].OrganizationID, rbac.ResourceUserProfile, p.ID.String(), &audit.ChangeDetails{
		Before: map[string]interface{}{"full_name": before},
		After:  map[string]interface{}{"full_name": updated.FullName},
	})
	httputil.WriteSuccess(w, UserResponse{Principal: updated, RoleAssignments: assignments})
}

// DeactivateUser deactivates a member and revokes its tokens. Principals are
// never deleted, and callers cannot deactivate themselves.
func (h *UserHandlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	p, assignments, err := h.member(r, rbac.OpDelete)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	caller := principalOf(r)
	if p.ID == caller {
		httputil.WriteAccessError(w, r, fmt.Errorf("%w: cannot deactivate your own account", httputil.ErrBadRequest))
		return
	}

	wasActive := p.IsActive
	p, err = h.auth.Deactivate(r.Context(), p.ID, caller)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if wasActive {
		record(r, audit.EventTypePrincipalDeactivate, assignments[0].OrganizationID, rbac.ResourceUserProfile, p.ID.String(), &audit.ChangeDetails{
			Before: map[string]interface{}{"is_active": true},
			After:  map[string]interface{}{"is_active": false},
		})
	}
	httputil.WriteSuccess(w, UserResponse{Principal: p, RoleAssignments: assignments})
}
