package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
)

var (
	// ErrNotFound is returned for missing records and for records outside the caller's scope
	ErrNotFound = errors.New("workflow record not found")
	// ErrInvalidRecord is returned when a new record is incomplete or inconsistent
	ErrInvalidRecord = errors.New("invalid workflow record")
)

const (
	workflowAdmission = "admission"
	workflowTransfer  = "transfer"
)

// ApplicationUpdate inspects the locked application and returns its next status.
// Returning an error aborts the update.
type ApplicationUpdate func(current *Application) (AdmissionStatus, error)

// TransferUpdate inspects the locked transfer and returns its next status
type TransferUpdate func(current *Transfer) (TransferStatus, error)

// Store persists applications, transfers and their transition history.
// Status updates run with the record locked, so concurrent transitions of the
// same record are applied one at a time.
type Store interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*Application, error)
	ListApplications(ctx context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Application, error)
	UpdateApplicationStatus(ctx context.Context, id, actorID uuid.UUID, note string, fn ApplicationUpdate) (*Application, error)

	CreateTransfer(ctx context.Context, t *Transfer) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error)
	ListTransfers(ctx context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Transfer, error)
	UpdateTransferStatus(ctx context.Context, id, actorID uuid.UUID, note string, fn TransferUpdate) (*Transfer, error)

	ListTransitions(ctx context.Context, workflow string, recordID uuid.UUID) ([]*Transition, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
