package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// tenantOf returns the tenant resolved by the middleware
func tenantOf(r *http.Request) (*tenants.Context, error) {
	tc, ok := tenants.FromContext(r.Context())
	if !ok || tc.Organization == nil {
		return nil, tenants.ErrTenantNotFound
	}
	return tc, nil
}

// principalOf returns the authenticated principal's ID
func principalOf(r *http.Request) uuid.UUID {
	if ac, ok := auth.FromContext(r.Context()); ok {
		return ac.Principal.ID
	}
	return uuid.Nil
}

// hideOutside reports records outside the caller's scope as missing
func hideOutside(err, notFound error) error {
	if errors.Is(err, authz.ErrOutsideScope) {
		return notFound
	}
	return err
}
