package audit

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEventNotFound is returned when an event does not exist in the requested organization
	ErrEventNotFound = errors.New("audit event not found")

	// ErrOrganizationRequired is returned when a tenant event carries no organization
	ErrOrganizationRequired = errors.New("audit event requires an organization")
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization decisions
	EventTypeAccessDenied  EventType = "authz.access_denied"
	EventTypeAccessGranted EventType = "authz.access_granted"

	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthTokenCreate EventType = "auth.token_create"
	EventTypeAuthTokenRevoke EventType = "auth.token_revoke"
	EventTypeAuthPassword    EventType = "auth.password_change"

	// Role administration
	EventTypeRoleCreate     EventType = "role.create"
	EventTypeRoleUpdate     EventType = "role.update"
	EventTypeRoleDeactivate EventType = "role.deactivate"
	EventTypeRoleAssign     EventType = "role.assign"
	EventTypeRoleRevoke     EventType = "role.revoke"

	// Principal administration
	EventTypePrincipalCreate     EventType = "principal.create"
	EventTypePrincipalUpdate     EventType = "principal.update"
	EventTypePrincipalDeactivate EventType = "principal.deactivate"

	// Tenant administration
	EventTypeOrgCreate       EventType = "organization.create"
	EventTypeOrgStatusChange EventType = "organization.status_change"
	EventTypeSchoolCreate    EventType = "school.create"
	EventTypeSchoolUpdate    EventType = "school.update"
	EventTypeSchoolDelete    EventType = "school.delete"

	// Workflows
	EventTypeAdmissionCreate    EventType = "admission.create"
	EventTypeTransferCreate     EventType = "transfer.create"
	EventTypeWorkflowTransition EventType = "workflow.transition"
)

// PlatformScoped reports whether events of this type may lack an
// organization: authentication, access decisions made outside any tenant,
// and grants of platform roles. Every other event belongs to one tenant.
func (t EventType) PlatformScoped() bool {
	switch t {
	case EventTypeRoleAssign, EventTypeRoleRevoke:
		return true
	}
	return strings.HasPrefix(string(t), "auth.") || strings.HasPrefix(string(t), "authz.")
}

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuditEvent is a single append-only audit record.
// OrganizationID is nil only for PlatformScoped event types with no tenant.
type AuditEvent struct {
	ID        uuid.UUID   `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole string     `json:"actor_role,omitempty"`

	// Tenant
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	SchoolID       *uuid.UUID `json:"school_id,omitempty"`

	// Target
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Reason carries the internal decision reason for denials
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Changes  *ChangeDetails          `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter selects events of one organization. There is no cross-tenant search.
type SearchFilter struct {
	OrganizationID uuid.UUID

	StartTime *time.Time
	EndTime   *time.Time

	ActorID    *uuid.UUID
	SchoolID   *uuid.UUID
	EventTypes []EventType
	Status     *EventStatus

	ResourceType string
	ResourceID   string

	Limit  int
	Offset int
}

// DefaultSearchLimit bounds searches that do not set a limit
const DefaultSearchLimit = 100

// MaxSearchLimit is the largest page a search returns
const MaxSearchLimit = 1000

func (f SearchFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultSearchLimit
	case f.Limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return f.Limit
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// Stats summarizes the audit trail of one organization
type Stats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueActors   int64                 `json:"unique_actors"`
	AccessDenials  int64                 `json:"access_denials"`
	TimeRange      *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
