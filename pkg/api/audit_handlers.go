package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// AuditHandlers exposes the audit trail of the resolved organization
type AuditHandlers struct {
	store audit.Store
	point *authz.DecisionPoint
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(store audit.Store, point *authz.DecisionPoint) *AuditHandlers {
	return &AuditHandlers{store: store, point: point}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit-events", h.Search).Methods(http.MethodGet)
	router.HandleFunc("/audit-events/export", h.Export).Methods(http.MethodGet)
	router.HandleFunc("/audit-events/stats", h.Stats).Methods(http.MethodGet)
	router.HandleFunc("/audit-events/{id}", h.Get).Methods(http.MethodGet)
}

// scopedFilter builds a search filter from the query and narrows it to the
// caller's scope
func (h *AuditHandlers) scopedFilter(r *http.Request) (audit.SearchFilter, rbac.ScopeFilter, error) {
	tc, err := tenantOf(r)
	if err != nil {
		return audit.SearchFilter{}, rbac.ScopeFilter{}, err
	}
	scope, err := h.point.ScopeFilter(r.Context(), authz.RequestFromContext(r.Context(), rbac.OpView, rbac.ResourceAuditEvent, nil))
	if err != nil {
		return audit.SearchFilter{}, rbac.ScopeFilter{}, err
	}

	filter, err := parseSearchFilter(r)
	if err != nil {
		return audit.SearchFilter{}, rbac.ScopeFilter{}, err
	}
	filter.OrganizationID = tc.Organization.ID
	switch scope.Kind {
	case rbac.FilterSchoolEquals:
		filter.SchoolID = scope.SchoolID
	case rbac.FilterOwnedBy, rbac.FilterAssignedTo:
		filter.SchoolID = scope.SchoolID
		filter.ActorID = scope.PrincipalID
	}
	return filter, scope, nil
}

func parseSearchFilter(r *http.Request) (audit.SearchFilter, error) {
	q := r.URL.Query()
	var f audit.SearchFilter

	for key, dest := range map[string]**time.Time{"start_time": &f.StartTime, "end_time": &f.EndTime} {
		if v := q.Get(key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("%w: %s must be RFC3339", httputil.ErrBadRequest, key)
			}
			*dest = &ts
		}
	}

	var err error
	if f.ActorID, err = httputil.ParseQueryUUID(r, "actor_id"); err != nil {
		return f, fmt.Errorf("%w: %v", httputil.ErrBadRequest, err)
	}
	if f.SchoolID, err = httputil.ParseQueryUUID(r, "school_id"); err != nil {
		return f, fmt.Errorf("%w: %v", httputil.ErrBadRequest, err)
	}
	for _, et := range q["event_type"] {
		f.EventTypes = append(f.EventTypes, audit.EventType(et))
	}
	if v := q.Get("status"); v != "" {
		status := audit.EventStatus(v)
		f.Status = &status
	}
	f.ResourceType = q.Get("resource_type")
	f.ResourceID = q.Get("resource_id")

	if f.Limit, f.Offset, err = httputil.ParsePage(r); err != nil {
		return f, fmt.Errorf("%w: %v", httputil.ErrBadRequest, err)
	}
	return f, nil
}

// Search lists the audit events visible to the caller
func (h *AuditHandlers) Search(w http.ResponseWriter, r *http.Request) {
	filter, _, err := h.scopedFilter(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	httputil.WriteSuccess(w, httputil.Page{Items: events, Limit: filter.Limit, Offset: filter.Offset})
}

// Export streams the visible events as json, ndjson or csv
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	filter, _, err := h.scopedFilter(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	contentType, ok := exportContentTypes[format]
	if !ok {
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	data, err := audit.Export(r.Context(), h.store, filter, format)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-events.%s", format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

var exportContentTypes = map[audit.ExportFormat]string{
	audit.ExportFormatJSON:   "application/json",
	audit.ExportFormatNDJSON: "application/x-ndjson",
	audit.ExportFormatCSV:    "text/csv",
}

// Stats summarizes the organization's audit trail. Only callers that can see
// the whole organization get statistics.
func (h *AuditHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	filter, scope, err := h.scopedFilter(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if !scope.Kind.Covers(rbac.FilterOrganizationEquals) {
		httputil.WriteAccessError(w, r, &authz.ForbiddenError{Reason: authz.ReasonOutsideScope})
		return
	}
	stats, err := h.store.GetStats(r.Context(), filter.OrganizationID, filter.StartTime, filter.EndTime)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

// Get returns one audit event
func (h *AuditHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, audit.ErrEventNotFound)
		return
	}
	filter, scope, err := h.scopedFilter(r)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	event, err := h.store.Get(r.Context(), filter.OrganizationID, id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if !scope.Admits(eventInstance(event, filter.OrganizationID)) {
		httputil.WriteAccessError(w, r, audit.ErrEventNotFound)
		return
	}
	httputil.WriteSuccess(w, event)
}

func eventInstance(e *audit.AuditEvent, orgID uuid.UUID) rbac.Instance {
	inst := rbac.Instance{
		ID:             e.ID.String(),
		Type:           rbac.ResourceAuditEvent,
		OrganizationID: orgID,
		SchoolID:       e.SchoolID,
	}
	if e.ActorID != nil {
		inst.Owners = []uuid.UUID{*e.ActorID}
		inst.Assignees = inst.Owners
	}
	return inst
}
