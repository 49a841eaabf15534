// Package middleware provides the HTTP request pipeline: request IDs,
// logging, bearer authentication, tenant and effective-role resolution,
// permission gates and rate limiting.
//
// A tenant route is assembled in this order:
//
//	router.Use(
//		middleware.RequestID,
//		middleware.Logging(logger),
//		middleware.Recovery,
//		audit.Middleware(auditLogger, trustProxy),
//		middleware.ResolveTenant(resolver, headers),
//		middleware.Authenticate(authenticator),
//		middleware.ResolveRole(registry, "X-Active-Role"),
//	)
//	router.Handle("/students", middleware.RequirePermission(point, rbac.OpView, rbac.ResourceStudent)(h))
//
// The tenant is resolved before the token is checked so an unknown or
// inactive tenant answers "access unavailable" to everyone alike.
//
// RateLimit guards the login endpoint per client address, in process with
// RateLimiter or shared across instances with DistributedRateLimiter.
package middleware
