package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/contextkeys"
	"github.com/platinummonkey/campus/pkg/notify"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// Authorizer is the part of the decision point the workflows depend on
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
	ScopeFilter(ctx context.Context, req authz.Request) (rbac.ScopeFilter, error)
}

// SchoolLookup resolves the schools a record refers to
type SchoolLookup interface {
	GetSchool(ctx context.Context, id uuid.UUID) (*tenants.School, error)
}

// Service runs the admission and transfer workflows on behalf of the
// principal, tenant and role carried by the request context
type Service struct {
	store    Store
	authz    Authorizer
	schools  SchoolLookup
	notifier notify.Notifier
	metrics  *observability.Metrics
}

// NewService creates a workflow service. notifier and metrics may be nil.
func NewService(store Store, authorizer Authorizer, schools SchoolLookup, notifier notify.Notifier, metrics *observability.Metrics) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		authz:    authorizer,
		schools:  schools,
		notifier: notifier,
		metrics:  metrics,
	}
}

// hide turns scope denials on an existing record into ErrNotFound so callers
// cannot probe for records of other tenants
func hide(err error) error {
	if errors.Is(err, authz.ErrOutsideScope) {
		return ErrNotFound
	}
	return err
}

func principal(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(contextkeys.GetPrincipalID(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// schoolOf loads a school and checks it belongs to orgID
func (s *Service) schoolOf(ctx context.Context, id, orgID uuid.UUID) (*tenants.School, error) {
	school, err := s.schools.GetSchool(ctx, id)
	if errors.Is(err, tenants.ErrSchoolNotFound) {
		return nil, fmt.Errorf("%w: unknown school %s", ErrInvalidRecord, id)
	}
	if err != nil {
		return nil, err
	}
	if orgID != uuid.Nil && school.OrganizationID != orgID {
		return nil, fmt.Errorf("%w: school %s belongs to another organization", ErrInvalidRecord, id)
	}
	return school, nil
}

// CreateApplication opens a draft application in the caller's tenant. The
// school defaults to the resolved school; the creator owns an application
// that names no owners.
func (s *Service) CreateApplication(ctx context.Context, app *Application) (*Application, error) {
	tc, ok := tenants.FromContext(ctx)
	if !ok || tc.Organization == nil {
		return nil, tenants.ErrTenantNotFound
	}
	app.ApplicantName = strings.TrimSpace(app.ApplicantName)
	if app.ApplicantName == "" {
		return nil, fmt.Errorf("%w: applicant name is required", ErrInvalidRecord)
	}

	app.ID = uuid.New()
	app.OrganizationID = tc.Organization.ID
	if app.SchoolID == uuid.Nil {
		if tc.School == nil {
			return nil, fmt.Errorf("%w: school is required", ErrInvalidRecord)
		}
		app.SchoolID = tc.School.ID
	}
	if _, err := s.schoolOf(ctx, app.SchoolID, app.OrganizationID); err != nil {
		return nil, err
	}
	app.CreatedBy = principal(ctx)
	if len(app.OwnerIDs) == 0 && app.CreatedBy != uuid.Nil {
		app.OwnerIDs = []uuid.UUID{app.CreatedBy}
	}
	app.Status = AdmissionMachine.Initial()

	req := authz.RequestFromContext(ctx, rbac.OpAdd, rbac.ResourceAdmissionApplication, app.Instance())
	if err := s.authz.Authorize(ctx, req); err != nil {
		return nil, err
	}

	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	orgID := app.OrganizationID
	s.audit(ctx, audit.EventTypeAdmissionCreate, &orgID, rbac.ResourceAdmissionApplication, app.ID, nil)
	s.notify(ctx, &notify.Notification{
		Topic:          notify.TopicAdmissionCreated,
		OrganizationID: app.OrganizationID,
		SchoolID:       &app.SchoolID,
		Recipients:     app.OwnerIDs,
		Subject:        "Admission application created",
		Data:           map[string]string{"application_id": app.ID.String(), "status": string(app.Status)},
	})
	return app, nil
}

// GetApplication returns an application the caller may view
func (s *Service) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	req := authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceAdmissionApplication, app.Instance())
	if err := s.authz.Authorize(ctx, req); err != nil {
		return nil, hide(err)
	}
	return app, nil
}

// ListApplications returns the applications within the caller's scope
func (s *Service) ListApplications(ctx context.Context, limit, offset int) ([]*Application, error) {
	filter, err := s.authz.ScopeFilter(ctx, authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceAdmissionApplication, nil))
	if err != nil {
		return nil, err
	}
	return s.store.ListApplications(ctx, filter, limit, offset)
}

// AdvanceApplication moves an application to status to. The caller needs the
// operation AdmissionAction(to) on the application; the move itself must be
// an edge of AdmissionMachine.
func (s *Service) AdvanceApplication(ctx context.Context, id uuid.UUID, to AdmissionStatus, note string) (*Application, error) {
	var from AdmissionStatus
	app, err := s.store.UpdateApplicationStatus(ctx, id, principal(ctx), note, func(current *Application) (AdmissionStatus, error) {
		req := authz.RequestFromContext(ctx, AdmissionAction(to), rbac.ResourceAdmissionApplication, current.Instance())
		if err := s.authz.Authorize(ctx, req); err != nil {
			return "", hide(err)
		}
		if err := AdmissionMachine.Transition(current.Status, to); err != nil {
			return "", err
		}
		from = current.Status
		return to, nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, workflowAdmission, string(to))
	orgID := app.OrganizationID
	s.audit(ctx, audit.EventTypeWorkflowTransition, &orgID, rbac.ResourceAdmissionApplication, app.ID, statusChange(string(from), string(to)))
	s.notify(ctx, &notify.Notification{
		Topic:          notify.TopicAdmissionTransition,
		OrganizationID: app.OrganizationID,
		SchoolID:       &app.SchoolID,
		Recipients:     app.OwnerIDs,
		Subject:        fmt.Sprintf("Admission application %s", strings.ReplaceAll(string(to), "_", " ")),
		Data: map[string]string{
			"application_id": app.ID.String(),
			"from":           string(from),
			"to":             string(to),
		},
	})
	return app, nil
}

// ApplicationHistory returns the transitions of an application the caller may view
func (s *Service) ApplicationHistory(ctx context.Context, id uuid.UUID) ([]*Transition, error) {
	if _, err := s.GetApplication(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, workflowAdmission, id)
}

// CreateTransfer opens a draft transfer out of the caller's tenant. The
// destination organization is taken from the destination school.
func (s *Service) CreateTransfer(ctx context.Context, t *Transfer) (*Transfer, error) {
	tc, ok := tenants.FromContext(ctx)
	if !ok || tc.Organization == nil {
		return nil, tenants.ErrTenantNotFound
	}
	if t.StudentID == uuid.Nil {
		return nil, fmt.Errorf("%w: student is required", ErrInvalidRecord)
	}
	if t.DestinationSchoolID == uuid.Nil {
		return nil, fmt.Errorf("%w: destination school is required", ErrInvalidRecord)
	}

	t.ID = uuid.New()
	t.OrganizationID = tc.Organization.ID
	if t.SchoolID == uuid.Nil {
		if tc.School == nil {
			return nil, fmt.Errorf("%w: source school is required", ErrInvalidRecord)
		}
		t.SchoolID = tc.School.ID
	}
	if t.SchoolID == t.DestinationSchoolID {
		return nil, fmt.Errorf("%w: source and destination school are the same", ErrInvalidRecord)
	}
	if _, err := s.schoolOf(ctx, t.SchoolID, t.OrganizationID); err != nil {
		return nil, err
	}
	destination, err := s.schoolOf(ctx, t.DestinationSchoolID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	t.DestinationOrganizationID = destination.OrganizationID
	t.RequestedBy = principal(ctx)
	t.Status = TransferMachine.Initial()

	req := authz.RequestFromContext(ctx, rbac.OpAdd, rbac.ResourceStudentTransfer, t.Instance(SideSource))
	if err := s.authz.Authorize(ctx, req); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransfer(ctx, t); err != nil {
		return nil, err
	}

	orgID := t.OrganizationID
	s.audit(ctx, audit.EventTypeTransferCreate, &orgID, rbac.ResourceStudentTransfer, t.ID, nil)
	s.notify(ctx, &notify.Notification{
		Topic:          notify.TopicTransferCreated,
		OrganizationID: t.OrganizationID,
		SchoolID:       &t.SchoolID,
		Recipients:     t.OwnerIDs,
		Subject:        "Student transfer requested",
		Data:           map[string]string{"transfer_id": t.ID.String(), "status": string(t.Status)},
	})
	return t, nil
}

// viewSide picks the side of t the caller can see, preferring the source
func viewSide(req authz.Request, t *Transfer) (Side, bool) {
	for _, side := range []Side{SideSource, SideDestination} {
		req.Instance = t.Instance(side)
		if authz.Decide(req).Allowed {
			return side, true
		}
	}
	return SideSource, false
}

// GetTransfer returns a transfer the caller may view from either side
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	t, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	req := authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceStudentTransfer, nil)
	side, _ := viewSide(req, t)
	req.Instance = t.Instance(side)
	if err := s.authz.Authorize(ctx, req); err != nil {
		return nil, hide(err)
	}
	return t, nil
}

// ListTransfers returns the transfers the caller can see on either side
func (s *Service) ListTransfers(ctx context.Context, limit, offset int) ([]*Transfer, error) {
	filter, err := s.authz.ScopeFilter(ctx, authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceStudentTransfer, nil))
	if err != nil {
		return nil, err
	}
	return s.store.ListTransfers(ctx, filter, limit, offset)
}

// AdvanceTransfer moves a transfer to status to. TransferStep decides which
// side's staff must authorize the move.
func (s *Service) AdvanceTransfer(ctx context.Context, id uuid.UUID, to TransferStatus, note string) (*Transfer, error) {
	var from TransferStatus
	t, err := s.store.UpdateTransferStatus(ctx, id, principal(ctx), note, func(current *Transfer) (TransferStatus, error) {
		side, op := TransferStep(current.Status, to)
		req := authz.RequestFromContext(ctx, op, rbac.ResourceStudentTransfer, current.Instance(side))
		if err := s.authz.Authorize(ctx, req); err != nil {
			// the other school may see the transfer but not move this stage
			if _, visible := viewSide(authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceStudentTransfer, nil), current); visible {
				return "", err
			}
			return "", hide(err)
		}
		if err := TransferMachine.Transition(current.Status, to); err != nil {
			return "", err
		}
		from = current.Status
		return to, nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, workflowTransfer, string(to))
	orgID := t.OrganizationID
	s.audit(ctx, audit.EventTypeWorkflowTransition, &orgID, rbac.ResourceStudentTransfer, t.ID, statusChange(string(from), string(to)))
	data := map[string]string{
		"transfer_id": t.ID.String(),
		"from":        string(from),
		"to":          string(to),
	}
	s.notify(ctx, &notify.Notification{
		Topic:          notify.TopicTransferTransition,
		OrganizationID: t.OrganizationID,
		SchoolID:       &t.SchoolID,
		Recipients:     t.OwnerIDs,
		Subject:        fmt.Sprintf("Student transfer %s", strings.ReplaceAll(string(to), "_", " ")),
		Data:           data,
	})
	if t.DestinationOrganizationID != t.OrganizationID {
		s.notify(ctx, &notify.Notification{
			Topic:          notify.TopicTransferTransition,
			OrganizationID: t.DestinationOrganizationID,
			SchoolID:       &t.DestinationSchoolID,
			Subject:        fmt.Sprintf("Incoming student transfer %s", strings.ReplaceAll(string(to), "_", " ")),
			Data:           data,
		})
	}
	return t, nil
}

// TransferHistory returns the transitions of a transfer the caller may view
func (s *Service) TransferHistory(ctx context.Context, id uuid.UUID) ([]*Transition, error) {
	if _, err := s.GetTransfer(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, workflowTransfer, id)
}

func statusChange(from, to string) *audit.ChangeDetails {
	return &audit.ChangeDetails{
		Before: map[string]interface{}{"status": from},
		After:  map[string]interface{}{"status": to},
	}
}

func (s *Service) transitioned(ctx context.Context, workflow, to string) {
	if s.metrics != nil {
		s.metrics.WorkflowTransitionTotal.WithLabelValues(workflow, to).Inc()
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"workflow": workflow,
		"to":       to,
	}).Info("Workflow transition applied")
}

func (s *Service) audit(ctx context.Context, eventType audit.EventType, orgID *uuid.UUID, rt rbac.ResourceType, id uuid.UUID, changes *audit.ChangeDetails) {
	if err := audit.Record(ctx, eventType, orgID, string(rt), id.String(), changes); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("Failed to record workflow event")
	}
}

func (s *Service) notify(ctx context.Context, n *notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("topic", string(n.Topic)).
			Warn("Failed to send notification")
	}
}
