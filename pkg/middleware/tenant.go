package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// TenantResolver resolves request hints to a tenant
type TenantResolver interface {
	Resolve(ctx context.Context, hints tenants.Hints) (*tenants.Context, error)
}

// RoleResolver picks the effective role of a principal in a tenant scope
type RoleResolver interface {
	EffectiveRole(ctx context.Context, principalID uuid.UUID, scope rbac.TenantScope, selected *uuid.UUID) (*rbac.EffectiveRole, error)
}

// ResolveTenant resolves the request's tenant and stores it on the context.
// Unknown and inactive tenants both answer "access unavailable".
func ResolveTenant(resolver TenantResolver, headers tenants.HeaderNames) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r.Context(), tenants.HintsFromRequest(r, headers))
			if err != nil {
				httputil.WriteAccessError(w, r, err)
				return
			}

			ctx := tenants.WithContext(r.Context(), tc)
			logger := observability.GetLogger(ctx).WithField("organization_id", tc.Organization.ID.String())
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveRole selects the authenticated principal's effective role for the
// resolved tenant, or the platform scope when no tenant was resolved. The
// header may carry a role assignment ID to pick among several roles.
//
// A principal without a role in scope continues without one so the denial is
// decided and audited by the decision point.
func ResolveRole(roles RoleResolver, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok || ac.Principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			var selected *uuid.UUID
			if raw := strings.TrimSpace(r.Header.Get(header)); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid "+header+" header")
					return
				}
				selected = &id
			}

			tc, _ := tenants.FromContext(r.Context())
			er, err := roles.EffectiveRole(r.Context(), ac.Principal.ID, rbac.ScopeOf(tc), selected)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithEffectiveRole(r.Context(), er)))
			case errors.Is(err, rbac.ErrNoRoleInScope):
				next.ServeHTTP(w, r)
			default:
				httputil.WriteAccessError(w, r, err)
			}
		})
	}
}
