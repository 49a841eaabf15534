package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/contextkeys"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// reasonReadOnly is recorded when a read-only tenant attempts a change
const reasonReadOnly = "tenant_read_only"

// DecisionPoint wraps Decide with the audit trail, metrics and tracing
type DecisionPoint struct {
	audit   audit.Logger
	metrics *observability.Metrics
}

// NewDecisionPoint creates a decision point. A nil logger falls back to the
// audit logger on the request context; metrics may be nil.
func NewDecisionPoint(auditLogger audit.Logger, metrics *observability.Metrics) *DecisionPoint {
	return &DecisionPoint{audit: auditLogger, metrics: metrics}
}

// RequestFromContext builds a request from the principal, tenant and
// effective role the middleware stored on ctx
func RequestFromContext(ctx context.Context, action rbac.Operation, resource rbac.ResourceType, inst *rbac.Instance) Request {
	req := Request{Action: action, Resource: resource, Instance: inst}
	if id, err := uuid.Parse(contextkeys.GetPrincipalID(ctx)); err == nil {
		req.PrincipalID = id
	}
	if tc, ok := tenants.FromContext(ctx); ok {
		req.Tenant = tc
	}
	if er, ok := rbac.EffectiveRoleFromContext(ctx); ok {
		req.Role = er
	}
	return req
}

// Authorize returns nil when the request is allowed. Denials return a
// *ForbiddenError. A state-changing action that Decide allows on a read-only
// tenant returns tenants.ErrTenantInactive unless the role is a platform role.
//
// Every denial, every state-changing allow and every allow under a platform
// role is written to the audit trail. Audit failures never change the outcome.
func (p *DecisionPoint) Authorize(ctx context.Context, req Request) error {
	ctx, span := observability.Tracer().Start(ctx, "authz.Authorize",
		trace.WithAttributes(
			attribute.String("authz.action", string(req.Action)),
			attribute.String("authz.resource", string(req.Resource)),
			attribute.String("authz.role", roleName(req.Role)),
		))
	defer span.End()

	decision := Decide(req)
	span.SetAttributes(attribute.Bool("authz.allowed", decision.Allowed))

	if !decision.Allowed {
		p.observe("deny", string(decision.Reason), req)
		p.record(ctx, req, audit.EventStatusDenied, string(decision.Reason))
		span.SetStatus(codes.Error, string(decision.Reason))
		return decision.Err()
	}

	// platform roles keep write access to read-only tenants
	if req.Tenant != nil && req.Tenant.ReadOnly && req.Action.Mutates() && !req.Role.IsPlatform() {
		p.observe("deny", reasonReadOnly, req)
		p.record(ctx, req, audit.EventStatusDenied, reasonReadOnly)
		span.SetStatus(codes.Error, reasonReadOnly)
		return fmt.Errorf("%w: subscription is read-only", tenants.ErrTenantInactive)
	}

	p.observe("allow", "", req)
	if req.Action.Mutates() || req.Role.IsPlatform() {
		p.record(ctx, req, audit.EventStatusSuccess, "")
	}
	return nil
}

// ScopeFilter authorizes req at the type level and returns the row filter
// for req.Resource. Inside a resolved tenant an unrestricted filter is
// narrowed to that tenant's organization.
func (p *DecisionPoint) ScopeFilter(ctx context.Context, req Request) (rbac.ScopeFilter, error) {
	req.Instance = nil
	if err := p.Authorize(ctx, req); err != nil {
		return rbac.ScopeFilter{}, err
	}

	filter, err := rbac.FilterFor(req.Role, req.Resource)
	if err != nil {
		return rbac.ScopeFilter{}, err
	}
	if filter.Kind == rbac.FilterUnrestricted && req.Tenant != nil && req.Tenant.Organization != nil {
		orgID := req.Tenant.Organization.ID
		filter = rbac.NewScopeFilter(rbac.FilterOrganizationEquals, &orgID, nil, req.PrincipalID)
	}
	return filter, nil
}

func (p *DecisionPoint) observe(decision, reason string, req Request) {
	if p.metrics == nil {
		return
	}
	p.metrics.AuthzDecisionsTotal.WithLabelValues(decision, reason, roleName(req.Role)).Inc()
}

func (p *DecisionPoint) record(ctx context.Context, req Request, status audit.EventStatus, reason string) {
	eventType := audit.EventTypeAccessGranted
	message := "access granted"
	if status == audit.EventStatusDenied {
		eventType = audit.EventTypeAccessDenied
		message = "access denied"
	}

	event := audit.NewEvent(ctx, eventType, status)
	if req.PrincipalID != uuid.Nil {
		actor := req.PrincipalID
		event.ActorID = &actor
	}
	event.ActorRole = roleName(req.Role)
	event.Action = string(req.Action)
	event.ResourceType = string(req.Resource)
	event.Reason = reason
	event.Message = message
	event.OrganizationID, event.SchoolID = targetTenant(req)
	if req.Instance != nil {
		event.ResourceID = req.Instance.ID
	}

	logger := p.audit
	if logger == nil {
		logger = audit.FromContext(ctx)
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("Failed to record access decision")
	}
}

// targetTenant is the organization and school an event belongs to: the
// instance's, else the resolved tenant's, else the role's
func targetTenant(req Request) (*uuid.UUID, *uuid.UUID) {
	if inst := req.Instance; inst != nil {
		orgID := inst.OrganizationID
		return &orgID, inst.SchoolID
	}
	if req.Tenant != nil && req.Tenant.Organization != nil {
		orgID := req.Tenant.Organization.ID
		return &orgID, req.Tenant.SchoolID()
	}
	if req.Role != nil {
		return req.Role.OrganizationID, req.Role.SchoolID
	}
	return nil, nil
}

func roleName(er *rbac.EffectiveRole) string {
	if er == nil || er.Role == nil {
		return "none"
	}
	return string(er.Role.Name)
}
