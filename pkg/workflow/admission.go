package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
)

// AdmissionStatus is the state of an admission application
type AdmissionStatus string

const (
	AdmissionDraft       AdmissionStatus = "draft"
	AdmissionSubmitted   AdmissionStatus = "submitted"
	AdmissionUnderReview AdmissionStatus = "under_review"
	AdmissionApproved    AdmissionStatus = "approved"
	AdmissionRejected    AdmissionStatus = "rejected"
	AdmissionWaitlisted  AdmissionStatus = "waitlisted"
	AdmissionEnrolled    AdmissionStatus = "enrolled"
	AdmissionWithdrawn   AdmissionStatus = "withdrawn"
	AdmissionCancelled   AdmissionStatus = "cancelled"
)

// AdmissionMachine is the admission application lifecycle
var AdmissionMachine = NewMachine("admission", AdmissionDraft, map[AdmissionStatus][]AdmissionStatus{
	AdmissionDraft:       {AdmissionSubmitted, AdmissionCancelled},
	AdmissionSubmitted:   {AdmissionUnderReview, AdmissionApproved, AdmissionRejected, AdmissionWaitlisted, AdmissionCancelled},
	AdmissionUnderReview: {AdmissionApproved, AdmissionRejected, AdmissionWaitlisted, AdmissionCancelled},
	AdmissionWaitlisted:  {AdmissionApproved, AdmissionRejected, AdmissionWithdrawn, AdmissionCancelled},
	AdmissionApproved:    {AdmissionEnrolled, AdmissionWithdrawn},
})

// AdmissionAction is the operation needed to move an application into to.
// Applicants submit, withdraw and cancel; review outcomes are decisions and
// need publish.
func AdmissionAction(to AdmissionStatus) rbac.Operation {
	switch to {
	case AdmissionSubmitted, AdmissionWithdrawn, AdmissionCancelled:
		return rbac.OpChange
	}
	return rbac.OpPublish
}

// Application is an admission application to one school. OwnerIDs are the
// guardians who may follow it.
type Application struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	SchoolID       uuid.UUID       `json:"school_id"`
	ApplicantName  string          `json:"applicant_name"`
	GradeApplied   string          `json:"grade_applied,omitempty"`
	OwnerIDs       []uuid.UUID     `json:"owner_ids"`
	Status         AdmissionStatus `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Instance describes the application for scope checks
func (a *Application) Instance() *rbac.Instance {
	schoolID := a.SchoolID
	return &rbac.Instance{
		ID:             a.ID.String(),
		Type:           rbac.ResourceAdmissionApplication,
		OrganizationID: a.OrganizationID,
		SchoolID:       &schoolID,
		Owners:         a.OwnerIDs,
	}
}
