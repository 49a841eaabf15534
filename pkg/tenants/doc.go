// Package tenants stores organizations and schools and resolves the tenant of each request.
//
// # Overview
//
// An Organization is the data-isolation boundary. It owns one or more Schools (the
// current deployment model is one school per organization). Organizations are never
// hard-deleted; deactivating one makes it stop resolving.
//
// # Resolution
//
// Resolver.Resolve tries the request hints in a fixed order and the first match wins:
//
//  1. tenant header (organization ID or slug)
//  2. custom domain
//  3. subdomain of the platform base domain
//  4. path-segment slug (/t/{tenant_slug}/...)
//
// A suspended subscription fails with ErrTenantInactive. Expired subscriptions fail
// the same way unless ResolverConfig.AllowExpiredReadOnly is set, in which case the
// resulting Context is marked ReadOnly.
//
// # Usage
//
//	resolver := tenants.NewResolver(tenants.NewPostgresDirectory(db), tenants.ResolverConfig{
//		BaseDomain: "campus.io",
//	})
//	tc, err := resolver.Resolve(ctx, tenants.HintsFromRequest(r, headers))
//	ctx = tenants.WithContext(ctx, tc)
//
// The Context lives only on the request context.
package tenants
