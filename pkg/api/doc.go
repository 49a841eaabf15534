// Package api is the HTTP surface of campus.
//
// Tenant routes are served twice: under /api/v1 with the tenant taken from
// the X-Tenant-ID header, a custom domain or a subdomain, and under
// /t/{tenant_slug}/api/v1 with the tenant in the path. Every tenant route
// authenticates the bearer token before it resolves the tenant, so anonymous
// callers learn nothing about which tenants exist, and then selects the
// caller's effective role before the handler runs. Handlers ask the
// decision point for each access and map errors with
// httputil.WriteAccessError.
//
// Platform routes under /platform/v1 have no tenant and only admit platform
// roles. Account routes (/me, /me/password, /me/tokens, /auth/logout) need a
// token but no tenant. POST /auth/login is the only unauthenticated route.
package api
