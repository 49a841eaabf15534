package tenants

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTenantNotFound is returned when no resolution hint matches an active tenant
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantInactive is returned when the matched organization may not be accessed
	ErrTenantInactive = errors.New("tenant inactive")

	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSchoolNotFound       = errors.New("school not found")
	ErrSlugTaken            = errors.New("slug already in use")
	ErrDomainTaken          = errors.New("domain already in use")
	ErrInvalidSlug          = errors.New("invalid slug")
)

// SubscriptionStatus is the billing state of an organization
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled:
		return true
	}
	return false
}

// Access returns how an organization in this status may be used.
// Expired and cancelled subscriptions become read-only when allowReadOnly is set.
func (s SubscriptionStatus) Access(allowReadOnly bool) (readOnly bool, err error) {
	switch s {
	case SubscriptionActive, SubscriptionTrial:
		return false, nil
	case SubscriptionExpired, SubscriptionCancelled:
		if allowReadOnly {
			return true, nil
		}
		return false, ErrTenantInactive
	default:
		return false, ErrTenantInactive
	}
}

// Organization is the root tenant
type Organization struct {
	ID                 uuid.UUID              `json:"id"`
	Name               string                 `json:"name"`
	Slug               string                 `json:"slug"`
	Domain             *string                `json:"domain,omitempty"`
	SubscriptionStatus SubscriptionStatus     `json:"subscription_status"`
	OwnerID            *uuid.UUID             `json:"owner_id,omitempty"`
	IsActive           bool                   `json:"is_active"`
	Settings           map[string]interface{} `json:"settings,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// School is an operating unit of an organization
type School struct {
	ID             uuid.UUID    `json:"id"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Config         SchoolConfig `json:"config"`
	IsPublished    bool         `json:"is_published"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SchoolConfig is the branding and locale document of a school.
// Keys without a dedicated field go to Extra.
type SchoolConfig struct {
	PrimaryColor   string            `json:"primary_color,omitempty"`
	SecondaryColor string            `json:"secondary_color,omitempty"`
	LogoURL        string            `json:"logo_url,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Language       string            `json:"language,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// SchoolUpdate holds the mutable school fields; nil fields are left unchanged
type SchoolUpdate struct {
	Name        *string       `json:"name,omitempty"`
	Config      *SchoolConfig `json:"config,omitempty"`
	IsPublished *bool         `json:"is_published,omitempty"`
}

// GenerateSlug derives a URL-safe slug from a display name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// ValidSlug reports whether s can be used as a subdomain label and path segment
func ValidSlug(s string) bool {
	if len(s) < 2 || len(s) > 63 {
		return false
	}
	return s == GenerateSlug(s)
}
