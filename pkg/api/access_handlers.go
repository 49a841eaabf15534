package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// AccessHandlers exposes the decision point to domain services and clients
type AccessHandlers struct {
	point *authz.DecisionPoint
}

// NewAccessHandlers creates a new AccessHandlers
func NewAccessHandlers(point *authz.DecisionPoint) *AccessHandlers {
	return &AccessHandlers{point: point}
}

// RegisterRoutes registers access routes
func (h *AccessHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authorize", h.Authorize).Methods(http.MethodPost)
	router.HandleFunc("/scope", h.Scope).Methods(http.MethodGet)
	router.HandleFunc("/organization", h.Organization).Methods(http.MethodGet)
}

// AuthorizeRequest asks whether the caller may perform Action on a resource
// type, or on Resource when it is given
type AuthorizeRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	Resource     *rbac.Instance `json:"resource,omitempty"`
}

// AuthorizeResponse is the decision. Denials carry no reason.
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// Authorize answers an access question for the caller. A denial is a normal
// answer here, not an error.
func (h *AccessHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	action, err := rbac.ParseOperation(req.Action)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	resource := rbac.ResourceType(req.ResourceType)
	if !resource.Valid() {
		httputil.WriteBadRequest(w, "unknown resource type")
		return
	}
	if req.Resource != nil {
		if req.Resource.OrganizationID == uuid.Nil {
			httputil.WriteBadRequest(w, "resource organization_id is required")
			return
		}
		req.Resource.Type = resource
	}

	err = h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), action, resource, req.Resource))
	switch {
	case err == nil:
		httputil.WriteSuccess(w, AuthorizeResponse{Allowed: true})
	case authz.IsForbidden(err):
		httputil.WriteSuccess(w, AuthorizeResponse{Allowed: false})
	default:
		httputil.WriteAccessError(w, r, err)
	}
}

// ScopeResponse describes the caller's effective role in the resolved tenant
type ScopeResponse struct {
	Organization *tenants.Organization                 `json:"organization"`
	School       *tenants.School                       `json:"school,omitempty"`
	ReadOnly     bool                                  `json:"read_only"`
	Role         *rbac.Role                            `json:"role"`
	AssignmentID *uuid.UUID                            `json:"assignment_id,omitempty"`
	Permissions  map[rbac.Module]rbac.OperationSet     `json:"permissions"`
	Filters      map[rbac.ResourceType]rbac.FilterKind `json:"filters"`
}

// Scope returns the effective role, its permissions and its filter kinds
func (h *AccessHandlers) Scope(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	er, ok := rbac.EffectiveRoleFromContext(r.Context())
	if !ok || er.Role == nil {
		httputil.WriteAccessError(w, r, rbac.ErrNoRoleInScope)
		return
	}

	resp := ScopeResponse{
		Organization: tc.Organization,
		School:       tc.School,
		ReadOnly:     tc.ReadOnly,
		Role:         er.Role,
		Permissions:  make(map[rbac.Module]rbac.OperationSet),
		Filters:      make(map[rbac.ResourceType]rbac.FilterKind),
	}
	if er.Assignment != nil {
		id := er.Assignment.ID
		resp.AssignmentID = &id
	}
	for _, module := range rbac.AllModules() {
		if ops := rbac.PermissionsFor(er.Role, module); ops != 0 {
			resp.Permissions[module] = ops
		}
	}
	for _, rt := range rbac.ResourceTypes() {
		if kind, err := rbac.KindFor(er.Role, rt); err == nil {
			resp.Filters[rt] = kind
		}
	}
	httputil.WriteSuccess(w, resp)
}

// OrganizationResponse is the resolved tenant
type OrganizationResponse struct {
	Organization *tenants.Organization `json:"organization"`
	School       *tenants.School       `json:"school,omitempty"`
	ReadOnly     bool                  `json:"read_only"`
}

// Organization returns the resolved tenant to callers that may view it
func (h *AccessHandlers) Organization(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	inst := &rbac.Instance{
		ID:             tc.Organization.ID.String(),
		Type:           rbac.ResourceOrganization,
		OrganizationID: tc.Organization.ID,
	}
	if err := h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpView, rbac.ResourceOrganization, inst)); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, OrganizationResponse{Organization: tc.Organization, School: tc.School, ReadOnly: tc.ReadOnly})
}
