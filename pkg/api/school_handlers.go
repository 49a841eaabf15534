package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// SchoolHandlers handles the schools of the resolved organization
type SchoolHandlers struct {
	dir   tenants.Directory
	point *authz.DecisionPoint
}

// NewSchoolHandlers creates a new SchoolHandlers
func NewSchoolHandlers(dir tenants.Directory, point *authz.DecisionPoint) *SchoolHandlers {
	return &SchoolHandlers{dir: dir, point: point}
}

// RegisterRoutes registers school routes
func (h *SchoolHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/schools", h.ListSchools).Methods(http.MethodGet)
	router.HandleFunc("/schools", h.CreateSchool).Methods(http.MethodPost)
	router.HandleFunc("/schools/{id}", h.GetSchool).Methods(http.MethodGet)
	router.HandleFunc("/schools/{id}", h.UpdateSchool).Methods(http.MethodPatch)
	router.HandleFunc("/schools/{id}", h.DeleteSchool).Methods(http.MethodDelete)
}

func schoolInstance(s *tenants.School) *rbac.Instance {
	id := s.ID
	return &rbac.Instance{
		ID:             s.ID.String(),
		Type:           rbac.ResourceSchool,
		OrganizationID: s.OrganizationID,
		SchoolID:       &id,
	}
}

// CreateSchoolRequest is the body of POST /schools
type CreateSchoolRequest struct {
	Name        string               `json:"name"`
	Slug        string               `json:"slug,omitempty"`
	Config      tenants.SchoolConfig `json:"config"`
	IsPublished bool                 `json:"is_published"`
}

// ListSchools lists the schools of the organization the caller can see
func (h *SchoolHandlers) ListSchools(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	filter, err := h.point.ScopeFilter(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpView, rbac.ResourceSchool, nil))
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	schools, err := h.dir.ListSchools(r.Context(), tc.Organization.ID)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	visible := make([]*tenants.School, 0, len(schools))
	for _, s := range schools {
		if filter.Admits(*schoolInstance(s)) {
			visible = append(visible, s)
		}
	}
	httputil.WriteSuccess(w, visible)
}

// CreateSchool adds a school to the organization
func (h *SchoolHandlers) CreateSchool(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantOf(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var req CreateSchoolRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	orgID := tc.Organization.ID
	inst := &rbac.Instance{Type: rbac.ResourceSchool, OrganizationID: orgID}
	if err := h.point.Authorize(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpAdd, rbac.ResourceSchool, inst)); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	school := &tenants.School{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(req.Name),
		Slug:           req.Slug,
		Config:         req.Config,
		IsPublished:    req.IsPublished,
	}
	if err := h.dir.CreateSchool(r.Context(), school); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	record(r, audit.EventTypeSchoolCreate, &orgID, rbac.ResourceSchool, school.ID.String(), nil)
	httputil.WriteCreated(w, school)
}

// load fetches a school of the resolved organization and authorizes action
// on it. Schools of other organizations and out-of-scope schools are not found.
func (h *SchoolHandlers) load(r *http.Request, action rbac.Operation) (*tenants.School, error) {
	tc, err := tenantOf(r)
	if err != nil {
		return nil, err
	}
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		return nil, tenants.ErrSchoolNotFound
	}
	school, err := h.dir.GetSchool(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if school.OrganizationID != tc.Organization.ID {
		return nil, tenants.ErrSchoolNotFound
	}
	req := authz.RequestFromContext(r.Context(), action, rbac.ResourceSchool, schoolInstance(school))
	if err := h.point.Authorize(r.Context(), req); err != nil {
		return nil, hideOutside(err, tenants.ErrSchoolNotFound)
	}
	return school, nil
}

// GetSchool returns a school
func (h *SchoolHandlers) GetSchool(w http.ResponseWriter, r *http.Request) {
	school, err := h.load(r, rbac.OpView)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, school)
}

// UpdateSchool changes the name, configuration or publication of a school
func (h *SchoolHandlers) UpdateSchool(w http.ResponseWriter, r *http.Request) {
	school, err := h.load(r, rbac.OpChange)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	var update tenants.SchoolUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		httputil.WriteBadRequest(w, "name cannot be empty")
		return
	}

	updated, err := h.dir.UpdateSchool(r.Context(), school.ID, &update)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	orgID := school.OrganizationID
	record(r, audit.EventTypeSchoolUpdate, &orgID, rbac.ResourceSchool, school.ID.String(), &audit.ChangeDetails{
		Before: map[string]interface{}{"name": school.Name, "is_published": school.IsPublished},
		After:  map[string]interface{}{"name": updated.Name, "is_published": updated.IsPublished},
	})
	httputil.WriteSuccess(w, updated)
}

// DeleteSchool soft-deletes a school
func (h *SchoolHandlers) DeleteSchool(w http.ResponseWriter, r *http.Request) {
	school, err := h.load(r, rbac.OpDelete)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if err := h.dir.DeleteSchool(r.Context(), school.ID); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	orgID := school.OrganizationID
	record(r, audit.EventTypeSchoolDelete, &orgID, rbac.ResourceSchool, school.ID.String(), nil)
	httputil.WriteNoContent(w)
}

// record writes a mutation to the request's audit trail. Failures are logged.
func record(r *http.Request, eventType audit.EventType, orgID *uuid.UUID, rt rbac.ResourceType, id string, changes *audit.ChangeDetails) {
	if err := audit.Record(r.Context(), eventType, orgID, string(rt), id, changes); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("Failed to record audit event")
	}
}
