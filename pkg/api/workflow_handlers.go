package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/workflow"
)

// WorkflowHandlers handles admission applications and student transfers
type WorkflowHandlers struct {
	workflows *workflow.Service
}

// NewWorkflowHandlers creates a new WorkflowHandlers
func NewWorkflowHandlers(workflows *workflow.Service) *WorkflowHandlers {
	return &WorkflowHandlers{workflows: workflows}
}

// RegisterRoutes registers workflow routes
func (h *WorkflowHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admissions", h.ListApplications).Methods(http.MethodGet)
	router.HandleFunc("/admissions", h.CreateApplication).Methods(http.MethodPost)
	router.HandleFunc("/admissions/{id}", h.GetApplication).Methods(http.MethodGet)
	router.HandleFunc("/admissions/{id}/transitions", h.ApplicationHistory).Methods(http.MethodGet)
	router.HandleFunc("/admissions/{id}/transitions", h.AdvanceApplication).Methods(http.MethodPost)

	router.HandleFunc("/transfers", h.ListTransfers).Methods(http.MethodGet)
	router.HandleFunc("/transfers", h.CreateTransfer).Methods(http.MethodPost)
	router.HandleFunc("/transfers/{id}", h.GetTransfer).Methods(http.MethodGet)
	router.HandleFunc("/transfers/{id}/transitions", h.TransferHistory).Methods(http.MethodGet)
	router.HandleFunc("/transfers/{id}/transitions", h.AdvanceTransfer).Methods(http.MethodPost)
}

// CreateApplicationRequest is the body of POST /admissions. The school
// defaults to the resolved school.
type CreateApplicationRequest struct {
	SchoolID      uuid.UUID   `json:"school_id"`
	ApplicantName string      `json:"applicant_name"`
	GradeApplied  string      `json:"grade_applied,omitempty"`
	OwnerIDs      []uuid.UUID `json:"owner_ids,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// CreateTransferRequest is the body of POST /transfers. The source school
// defaults to the resolved school.
type CreateTransferRequest struct {
	StudentID           uuid.UUID   `json:"student_id"`
	SchoolID            uuid.UUID   `json:"school_id"`
	DestinationSchoolID uuid.UUID   `json:"destination_school_id"`
	Reason              string      `json:"reason,omitempty"`
	OwnerIDs            []uuid.UUID `json:"owner_ids,omitempty"`
}

// TransitionRequest is the body of POST .../transitions
type TransitionRequest struct {
	To   string `json:"to"`
	Note string `json:"note,omitempty"`
}

func parseTransition(w http.ResponseWriter, r *http.Request) (uuid.UUID, *TransitionRequest, bool) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, workflow.ErrNotFound)
		return uuid.Nil, nil, false
	}
	var req TransitionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return uuid.Nil, nil, false
	}
	if req.To == "" {
		httputil.WriteBadRequest(w, "to is required")
		return uuid.Nil, nil, false
	}
	return id, &req, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteAccessError(w, r, workflow.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// CreateApplication opens a draft admission application
func (h *WorkflowHandlers) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	app, err := h.workflows.CreateApplication(r.Context(), &workflow.Application{
		SchoolID:      req.SchoolID,
		ApplicantName: req.ApplicantName,
		GradeApplied:  req.GradeApplied,
		OwnerIDs:      req.OwnerIDs,
		Notes:         req.Notes,
	})
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteCreated(w, app)
}

// ListApplications lists the applications in the caller's scope
func (h *WorkflowHandlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	apps, err := h.workflows.ListApplications(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*workflow.Application{}
	}
	httputil.WriteSuccess(w, httputil.Page{Items: apps, Limit: limit, Offset: offset})
}

// GetApplication returns an application
func (h *WorkflowHandlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.workflows.GetApplication(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// ApplicationHistory lists the transitions of an application
func (h *WorkflowHandlers) ApplicationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.workflows.ApplicationHistory(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if history == nil {
		history = []*workflow.Transition{}
	}
	httputil.WriteSuccess(w, history)
}

// AdvanceApplication moves an application to a new status
func (h *WorkflowHandlers) AdvanceApplication(w http.ResponseWriter, r *http.Request) {
	id, req, ok := parseTransition(w, r)
	if !ok {
		return
	}
	app, err := h.workflows.AdvanceApplication(r.Context(), id, workflow.AdmissionStatus(req.To), req.Note)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// CreateTransfer opens a draft student transfer
func (h *WorkflowHandlers) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	t, err := h.workflows.CreateTransfer(r.Context(), &workflow.Transfer{
		StudentID:           req.StudentID,
		SchoolID:            req.SchoolID,
		DestinationSchoolID: req.DestinationSchoolID,
		Reason:              req.Reason,
		OwnerIDs:            req.OwnerIDs,
	})
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteCreated(w, t)
}

// ListTransfers lists the transfers visible to the caller on either side
func (h *WorkflowHandlers) ListTransfers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	transfers, err := h.workflows.ListTransfers(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []*workflow.Transfer{}
	}
	httputil.WriteSuccess(w, httputil.Page{Items: transfers, Limit: limit, Offset: offset})
}

// GetTransfer returns a transfer
func (h *WorkflowHandlers) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.workflows.GetTransfer(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

// TransferHistory lists the transitions of a transfer
func (h *WorkflowHandlers) TransferHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.workflows.TransferHistory(r.Context(), id)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if history == nil {
		history = []*workflow.Transition{}
	}
	httputil.WriteSuccess(w, history)
}

// AdvanceTransfer moves a transfer to a new status
func (h *WorkflowHandlers) AdvanceTransfer(w http.ResponseWriter, r *http.Request) {
	id, req, ok := parseTransition(w, r)
	if !ok {
		return
	}
	t, err := h.workflows.AdvanceTransfer(r.Context(), id, workflow.TransferStatus(req.To), req.Note)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}
