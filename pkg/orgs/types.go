package orgs

import (
	"errors"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// ErrInvalidRequest is returned for incomplete onboarding or status requests
var ErrInvalidRequest = errors.New("invalid organization request")

// OnboardRequest describes a new tenant: the organization, optionally its
// first school and the principal that administers it
type OnboardRequest struct {
	Name               string                     `json:"name"`
	Slug               string                     `json:"slug,omitempty"`
	Domain             *string                    `json:"domain,omitempty"`
	SubscriptionStatus tenants.SubscriptionStatus `json:"subscription_status,omitempty"`
	Settings           map[string]interface{}     `json:"settings,omitempty"`

	School *SchoolRequest `json:"school,omitempty"`

	// AdminPrincipalID receives the org_admin role and becomes the owner
	AdminPrincipalID *uuid.UUID `json:"admin_principal_id,omitempty"`
}

// SchoolRequest describes the first school of an onboarded organization
type SchoolRequest struct {
	Name   string               `json:"name"`
	Slug   string               `json:"slug,omitempty"`
	Config tenants.SchoolConfig `json:"config"`
}

// Onboarding is the result of a successful onboarding
type Onboarding struct {
	Organization *tenants.Organization `json:"organization"`
	School       *tenants.School       `json:"school,omitempty"`
	Assignment   *rbac.RoleAssignment  `json:"assignment,omitempty"`
}

// StatusUpdate changes the lifecycle of an organization; nil fields are left unchanged
type StatusUpdate struct {
	SubscriptionStatus *tenants.SubscriptionStatus `json:"subscription_status,omitempty"`
	// Deactivate soft-deletes the organization; it cannot be undone here
	Deactivate bool `json:"deactivate,omitempty"`
}
