package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// PlatformHandlers manages organizations outside any tenant. Only platform
// roles pass the decision point here.
type PlatformHandlers struct {
	orgs  *orgs.Service
	dir   tenants.Directory
	point *authz.DecisionPoint
}

// NewPlatformHandlers creates a new PlatformHandlers
func NewPlatformHandlers(orgSvc *orgs.Service, dir tenants.Directory, point *authz.DecisionPoint) *PlatformHandlers {
	return &PlatformHandlers{orgs: orgSvc, dir: dir, point: point}
}

// RegisterRoutes registers platform routes
func (h *PlatformHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", h.Onboard).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{id}", h.GetOrganization).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{id}", h.UpdateStatus).Methods(http.MethodPatch)
}

func organizationInstance(id uuid.UUID) *rbac.Instance {
	return &rbac.Instance{ID: id.String(), Type: rbac.ResourceOrganization, OrganizationID: id}
}

// Onboard creates an organization with its first school and administrator
func (h *PlatformHandlers) Onboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.point.Authorize(ctx, authz.RequestFromContext(ctx, rbac.OpAdd, rbac.ResourceOrganization, nil)); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	var req orgs.OnboardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	result, err := h.orgs.Onboard(ctx, &req)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// GetOrganization returns an organization
func (h *PlatformHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, tenants.ErrOrganizationNotFound)
		return
	}
	ctx := r.Context()
	if err := h.point.Authorize(ctx, authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceOrganization, organizationInstance(id))); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	org, err := h.dir.GetOrganization(ctx, id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// UpdateStatus changes the subscription status or deactivates an organization
func (h *PlatformHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, tenants.ErrOrganizationNotFound)
		return
	}
	ctx := r.Context()
	if err := h.point.Authorize(ctx, authz.RequestFromContext(ctx, rbac.OpChange, rbac.ResourceOrganization, organizationInstance(id))); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	var update orgs.StatusUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}
	org, err := h.orgs.UpdateStatus(ctx, id, &update)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}
