// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// Tenant and role context travel only on the request context, never in
// package-level state.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/campus/pkg/contextkeys"
//	ctx = contextkeys.WithTenant(ctx, tenantCtx)
//	tc, _ := ctx.Value(contextkeys.TenantKey).(*tenants.Context)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.Authenticate (pkg/middleware/auth.go)
	// Required by: every endpoint behind the bearer token check
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// TenantKey contains *tenants.Context
	// Set by: middleware.ResolveTenant (pkg/middleware/tenant.go)
	// Required by: role resolution, scope filters, tenant-scoped handlers
	// Type: *tenants.Context
	TenantKey Key = "tenant"

	// EffectiveRoleKey contains *rbac.EffectiveRole
	// Set by: middleware.ResolveRole (pkg/middleware/role.go)
	// Required by: authz.DecisionPoint callers in handlers
	// Type: *rbac.EffectiveRole
	EffectiveRoleKey Key = "effective_role"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// PrincipalIDKey contains the authenticated principal ID string
	// Set by: Auth middleware after token validation
	// Used by: Logger, audit trail
	// Type: string
	PrincipalIDKey Key = "principal_id"

	// LoggerKey contains *observability.Logger
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// ClientIPKey and UserAgentKey carry request metadata copied into audit events
	ClientIPKey  Key = "client_ip"
	UserAgentKey Key = "user_agent"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithTenant adds the resolved tenant context
func WithTenant(ctx context.Context, tenant interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// WithEffectiveRole adds the request's effective role
func WithEffectiveRole(ctx context.Context, role interface{}) context.Context {
	return context.WithValue(ctx, EffectiveRoleKey, role)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPrincipalID adds principal ID to the context
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, PrincipalIDKey, principalID)
}

// WithClient records the caller's IP address and user agent
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ClientIPKey, ip)
	return context.WithValue(ctx, UserAgentKey, userAgent)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetPrincipalID retrieves principal ID from context
func GetPrincipalID(ctx context.Context) string {
	if id, ok := ctx.Value(PrincipalIDKey).(string); ok {
		return id
	}
	return ""
}

// GetClient returns the caller's IP address and user agent, if recorded
func GetClient(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ClientIPKey).(string)
	userAgent, _ = ctx.Value(UserAgentKey).(string)
	return ip, userAgent
}
