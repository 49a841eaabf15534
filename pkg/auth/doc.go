// Package auth authenticates principals and manages their API tokens.
//
// # Overview
//
// A Principal is an identity with an email and a bcrypt password hash. It
// carries no permissions: roles are assigned per organization or school in
// package rbac and resolved per request.
//
// # Tokens
//
// Tokens are opaque bearer strings of the form campus_<base64url(32 random bytes)>.
// Only the SHA256 hash is stored, together with a short display prefix.
//
//	manager := auth.NewTokenManager(auth.NewPostgresStore(db))
//	apiToken, plaintext, err := manager.CreateToken(ctx, principal.ID, "ci", 30*24*time.Hour)
//	// hand plaintext to the caller once
//
//	apiToken, err = manager.ValidateToken(ctx, plaintext)
//	// ErrInvalidToken, ErrTokenExpired or ErrTokenRevoked on failure
//
// # Login
//
// Authenticator.Login checks a password and issues a session token. Unknown
// emails, wrong passwords and inactive principals are indistinguishable to
// the caller and every attempt lands in the audit trail.
//
//	authenticator := auth.NewAuthenticator(store, manager, 12*time.Hour)
//	principal, token, plaintext, err := authenticator.Login(ctx, email, password)
//
// # Cleanup
//
// Expired tokens are deleted by a cron job:
//
//	c := cron.New()
//	auth.ScheduleCleanup(c, auth.DefaultCleanupSchedule, auth.NewCleanupJob(manager, metrics.TokensCleanedUpTotal, logger))
//	c.Start()
package auth
