package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/contextkeys"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenNotFound      = errors.New("token not found")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrPrincipalInactive  = errors.New("principal is inactive")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too weak")
	ErrPasswordMismatch   = errors.New("current password is incorrect")
)

// Principal is an authenticated identity: staff, parent, student or platform operator.
// What a principal may do comes from its role assignments, not from the principal itself.
type Principal struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// APIToken is a bearer token issued to a principal. Only its hash is stored.
type APIToken struct {
	ID           uuid.UUID  `json:"id"`
	PrincipalID  uuid.UUID  `json:"principal_id"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *uuid.UUID `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Usable reports why the token cannot be used at now, or nil
func (t *APIToken) Usable(now time.Time) error {
	if t.RevokedAt != nil {
		return ErrTokenRevoked
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// AuthContext holds the authenticated principal of a request
type AuthContext struct {
	Principal *Principal
	Token     *APIToken
}

// WithAuthContext stores ac and the principal ID on ctx
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	ctx = contextkeys.WithAuth(ctx, ac)
	if ac != nil && ac.Principal != nil {
		ctx = contextkeys.WithPrincipalID(ctx, ac.Principal.ID.String())
	}
	return ctx
}

// FromContext returns the authenticated principal of ctx
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return ac, ok && ac != nil && ac.Principal != nil
}
