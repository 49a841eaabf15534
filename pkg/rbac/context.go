package rbac

import (
	"context"

	"github.com/platinummonkey/campus/pkg/contextkeys"
)

// WithEffectiveRole stores the request's effective role on ctx
func WithEffectiveRole(ctx context.Context, er *EffectiveRole) context.Context {
	return contextkeys.WithEffectiveRole(ctx, er)
}

// EffectiveRoleFromContext returns the effective role stored on ctx
func EffectiveRoleFromContext(ctx context.Context) (*EffectiveRole, bool) {
	er, ok := ctx.Value(contextkeys.EffectiveRoleKey).(*EffectiveRole)
	return er, ok && er != nil
}
