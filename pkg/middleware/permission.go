package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// Authorizer answers type-level access checks
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
}

// RequirePermission gates a route on a type-level decision for action on
// resource. Instance checks stay in the domain services.
func RequirePermission(point Authorizer, action rbac.Operation, resource rbac.ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := authz.RequestFromContext(r.Context(), action, resource, nil)
			if err := point.Authorize(r.Context(), req); err != nil {
				httputil.WriteAccessError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
