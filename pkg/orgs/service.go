package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/contextkeys"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// RoleGranter assigns roles to principals
type RoleGranter interface {
	Assign(ctx context.Context, a *rbac.RoleAssignment) error
}

// Service onboards organizations and manages their lifecycle. Callers
// authorize the platform action before calling it.
type Service struct {
	dir   tenants.Directory
	roles RoleGranter
}

// NewService creates a Service
func NewService(dir tenants.Directory, roles RoleGranter) *Service {
	return &Service{dir: dir, roles: roles}
}

// Onboard creates an organization, its first school and its administrator
// assignment. Steps that already ran are not rolled back when a later one
// fails; the error names the step.
func (s *Service) Onboard(ctx context.Context, req *OnboardRequest) (*Onboarding, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if req.SubscriptionStatus != "" && !req.SubscriptionStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidRequest, req.SubscriptionStatus)
	}
	if req.School != nil && strings.TrimSpace(req.School.Name) == "" {
		return nil, fmt.Errorf("%w: school name is required", ErrInvalidRequest)
	}

	org := &tenants.Organization{
		Name:               name,
		Slug:               req.Slug,
		Domain:             req.Domain,
		SubscriptionStatus: req.SubscriptionStatus,
		OwnerID:            req.AdminPrincipalID,
		Settings:           req.Settings,
	}
	if err := s.dir.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	orgID := org.ID
	s.record(ctx, audit.EventTypeOrgCreate, &orgID, rbac.ResourceOrganization, org.ID.String(), nil)

	result := &Onboarding{Organization: org}
	logger := observability.FromContext(ctx).WithField("organization_id", org.ID.String())

	if req.School != nil {
		school := &tenants.School{
			OrganizationID: org.ID,
			Name:           strings.TrimSpace(req.School.Name),
			Slug:           req.School.Slug,
			Config:         req.School.Config,
		}
		if err := s.dir.CreateSchool(ctx, school); err != nil {
			return result, fmt.Errorf("organization %s created, school failed: %w", org.Slug, err)
		}
		s.record(ctx, audit.EventTypeSchoolCreate, &orgID, rbac.ResourceSchool, school.ID.String(), nil)
		result.School = school
	}

	if req.AdminPrincipalID != nil {
		a := &rbac.RoleAssignment{
			PrincipalID:    *req.AdminPrincipalID,
			RoleID:         rbac.SystemRoleID(rbac.RoleOrgAdmin),
			OrganizationID: &orgID,
			IsActive:       true,
		}
		if actor, err := uuid.Parse(contextkeys.GetPrincipalID(ctx)); err == nil {
			a.GrantedBy = &actor
		}
		if err := s.roles.Assign(ctx, a); err != nil {
			return result, fmt.Errorf("organization %s created, admin assignment failed: %w", org.Slug, err)
		}
		s.record(ctx, audit.EventTypeRoleAssign, &orgID, rbac.ResourceRoleAssignment, a.ID.String(), nil)
		result.Assignment = a
	}

	logger.WithField("slug", org.Slug).Info("Organization onboarded")
	return result, nil
}

// UpdateStatus applies a subscription change or a deactivation and returns
// the organization as stored afterwards
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, update *StatusUpdate) (*tenants.Organization, error) {
	if update.SubscriptionStatus == nil && !update.Deactivate {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	org, err := s.dir.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{
		"subscription_status": string(org.SubscriptionStatus),
		"is_active":           org.IsActive,
	}

	if status := update.SubscriptionStatus; status != nil {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidRequest, *status)
		}
		if err := s.dir.SetSubscriptionStatus(ctx, id, *status); err != nil {
			return nil, err
		}
	}
	if update.Deactivate {
		if err := s.dir.DeactivateOrganization(ctx, id); err != nil {
			return nil, err
		}
	}

	org, err = s.dir.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.EventTypeOrgStatusChange, &id, rbac.ResourceOrganization, id.String(), &audit.ChangeDetails{
		Before: before,
		After: map[string]interface{}{
			"subscription_status": string(org.SubscriptionStatus),
			"is_active":           org.IsActive,
		},
	})
	return org, nil
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, orgID *uuid.UUID, rt rbac.ResourceType, id string, changes *audit.ChangeDetails) {
	if err := audit.Record(ctx, eventType, orgID, string(rt), id, changes); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("Failed to record audit event")
	}
}
