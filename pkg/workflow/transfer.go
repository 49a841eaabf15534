package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
)

// TransferStatus is the state of a student transfer
type TransferStatus string

const (
	TransferDraft              TransferStatus = "draft"
	TransferPendingSource      TransferStatus = "pending_source"
	TransferApprovedSource     TransferStatus = "approved_source"
	TransferPendingDestination TransferStatus = "pending_destination"
	TransferAccepted           TransferStatus = "accepted"
	TransferCompleted          TransferStatus = "completed"
	TransferRejected           TransferStatus = "rejected"
	TransferCancelled          TransferStatus = "cancelled"
)

// TransferMachine is the student transfer lifecycle. Rejection and
// cancellation are reachable from every state before completion.
var TransferMachine = NewMachine("transfer", TransferDraft, map[TransferStatus][]TransferStatus{
	TransferDraft:              {TransferPendingSource, TransferRejected, TransferCancelled},
	TransferPendingSource:      {TransferApprovedSource, TransferRejected, TransferCancelled},
	TransferApprovedSource:     {TransferPendingDestination, TransferRejected, TransferCancelled},
	TransferPendingDestination: {TransferAccepted, TransferRejected, TransferCancelled},
	TransferAccepted:           {TransferCompleted, TransferRejected, TransferCancelled},
})

// Side is the school that owns a transfer stage
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// TransferStep returns the side whose staff must authorize from -> to and
// the operation they need. Cancelling belongs to the source school; a
// rejection belongs to whichever side holds the transfer.
func TransferStep(from, to TransferStatus) (Side, rbac.Operation) {
	holder := SideSource
	if from == TransferPendingDestination || from == TransferAccepted {
		holder = SideDestination
	}

	switch to {
	case TransferPendingSource, TransferPendingDestination, TransferCancelled:
		return SideSource, rbac.OpChange
	case TransferApprovedSource:
		return SideSource, rbac.OpPublish
	case TransferAccepted, TransferCompleted:
		return SideDestination, rbac.OpPublish
	}
	return holder, rbac.OpPublish
}

// Transfer moves a student from one school to another, possibly across organizations
type Transfer struct {
	ID                        uuid.UUID      `json:"id"`
	StudentID                 uuid.UUID      `json:"student_id"`
	OrganizationID            uuid.UUID      `json:"organization_id"`
	SchoolID                  uuid.UUID      `json:"school_id"`
	DestinationOrganizationID uuid.UUID      `json:"destination_organization_id"`
	DestinationSchoolID       uuid.UUID      `json:"destination_school_id"`
	Reason                    string         `json:"reason,omitempty"`
	OwnerIDs                  []uuid.UUID    `json:"owner_ids"`
	Status                    TransferStatus `json:"status"`
	RequestedBy               uuid.UUID      `json:"requested_by"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

// Instance describes the transfer as seen from one side
func (t *Transfer) Instance(side Side) *rbac.Instance {
	inst := &rbac.Instance{
		ID:     t.ID.String(),
		Type:   rbac.ResourceStudentTransfer,
		Owners: t.OwnerIDs,
	}
	if side == SideDestination {
		schoolID := t.DestinationSchoolID
		inst.OrganizationID = t.DestinationOrganizationID
		inst.SchoolID = &schoolID
		return inst
	}
	schoolID := t.SchoolID
	inst.OrganizationID = t.OrganizationID
	inst.SchoolID = &schoolID
	return inst
}

// Transition is one applied state change of a workflow record
type Transition struct {
	ID        uuid.UUID `json:"id"`
	Workflow  string    `json:"workflow"`
	RecordID  uuid.UUID `json:"record_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   uuid.UUID `json:"actor_id"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
