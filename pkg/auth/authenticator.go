package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/campus/pkg/async"
	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// DefaultSessionTTL is the lifetime of tokens issued by Login
const DefaultSessionTTL = 12 * time.Hour

// OrganizationLookup names the organization a principal's authentication
// events are filed under
type OrganizationLookup interface {
	PrimaryOrganization(ctx context.Context, principalID uuid.UUID) (*uuid.UUID, error)
}

// Authenticator verifies credentials and bearer tokens and manages principals
type Authenticator struct {
	principals PrincipalStore
	tokens     *TokenManager
	sessionTTL time.Duration
	orgs       OrganizationLookup
}

// NewAuthenticator creates an authenticator. A zero sessionTTL uses DefaultSessionTTL.
func NewAuthenticator(principals PrincipalStore, tokens *TokenManager, sessionTTL time.Duration) *Authenticator {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Authenticator{principals: principals, tokens: tokens, sessionTTL: sessionTTL}
}

// WithOrganizationLookup files authentication events under the principal's
// primary organization
func (a *Authenticator) WithOrganizationLookup(orgs OrganizationLookup) *Authenticator {
	a.orgs = orgs
	return a
}

// Tokens returns the token manager
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

// Principal returns a principal by ID
func (a *Authenticator) Principal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return a.principals.GetPrincipal(ctx, id)
}

// ListPrincipals returns the principals with the given IDs
func (a *Authenticator) ListPrincipals(ctx context.Context, ids []uuid.UUID) ([]*Principal, error) {
	return a.principals.ListPrincipals(ctx, ids)
}

// Register creates an active principal with a hashed password
func (a *Authenticator) Register(ctx context.Context, email, fullName, password string) (*Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	p := &Principal{Email: email, FullName: fullName, PasswordHash: hash, IsActive: true}
	if err := a.principals.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Login checks email and password and issues a session token.
// Unknown emails, wrong passwords and inactive principals all fail with
// ErrInvalidCredentials; each attempt is audited.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Principal, *APIToken, string, error) {
	p, err := a.principals.GetPrincipalByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return nil, nil, "", err
	}
	if p == nil || !p.IsActive || CheckPassword(p.PasswordHash, password) != nil {
		var actor *uuid.UUID
		if p != nil {
			actor = &p.ID
		}
		a.audit(ctx, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, actor, "")
		return nil, nil, "", ErrInvalidCredentials
	}

	token, plaintext, err := a.tokens.CreateToken(ctx, p.ID, "session", a.sessionTTL)
	if err != nil {
		return nil, nil, "", err
	}
	now := time.Now().UTC()
	principalID := p.ID
	async.SafeGo(ctx, 5*time.Second, "record login", func(ctx context.Context) error {
		return a.principals.RecordLogin(ctx, principalID, now)
	})
	p.LastLoginAt = &now

	a.audit(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess, &p.ID, token.ID.String())
	return p, token, plaintext, nil
}

// Authenticate resolves a bearer token to its active principal
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (*AuthContext, error) {
	token, err := a.tokens.ValidateToken(ctx, bearer)
	if err != nil {
		return nil, err
	}
	p, err := a.principals.GetPrincipal(ctx, token.PrincipalID)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPrincipalInactive
	}
	return &AuthContext{Principal: p, Token: token}, nil
}

// UpdateProfile changes the display name of a principal
func (a *Authenticator) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string) (*Principal, error) {
	p, err := a.principals.GetPrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FullName = fullName
	if err := a.principals.UpdatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ChangePassword replaces the password of a principal after checking the
// current one. Existing tokens stay valid.
func (a *Authenticator) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	p, err := a.principals.GetPrincipal(ctx, id)
	if err != nil {
		return err
	}
	if CheckPassword(p.PasswordHash, current) != nil {
		a.audit(ctx, audit.EventTypeAuthPassword, audit.EventStatusFailure, &p.ID, "")
		return ErrPasswordMismatch
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	if err := a.principals.UpdatePrincipal(ctx, p); err != nil {
		return err
	}
	a.audit(ctx, audit.EventTypeAuthPassword, audit.EventStatusSuccess, &p.ID, "")
	return nil
}

// Deactivate marks a principal inactive and revokes its live tokens.
// Principals are never deleted; deactivating twice is a no-op.
func (a *Authenticator) Deactivate(ctx context.Context, id, by uuid.UUID) (*Principal, error) {
	p, err := a.principals.GetPrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	if err := a.principals.UpdatePrincipal(ctx, p); err != nil {
		return nil, err
	}

	tokens, err := a.tokens.ListPrincipalTokens(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if t.RevokedAt != nil {
			continue
		}
		if err := a.tokens.RevokeToken(ctx, t.ID, by, "principal deactivated"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Logout revokes the token the caller authenticated with
func (a *Authenticator) Logout(ctx context.Context, ac *AuthContext) error {
	if ac == nil || ac.Token == nil {
		return ErrInvalidToken
	}
	if err := a.tokens.RevokeToken(ctx, ac.Token.ID, ac.Principal.ID, "logout"); err != nil {
		return err
	}
	a.audit(ctx, audit.EventTypeAuthTokenRevoke, audit.EventStatusSuccess, &ac.Principal.ID, ac.Token.ID.String())
	return nil
}

func (a *Authenticator) audit(ctx context.Context, eventType audit.EventType, status audit.EventStatus, actor *uuid.UUID, tokenID string) {
	event := audit.NewEvent(ctx, eventType, status)
	event.ActorID = actor
	event.ResourceType = "api_token"
	event.ResourceID = tokenID
	if eventType == audit.EventTypeAuthPassword {
		event.ResourceType = string(rbac.ResourceUserProfile)
		event.ResourceID = actor.String()
	}
	if actor != nil && a.orgs != nil {
		orgID, err := a.orgs.PrimaryOrganization(ctx, *actor)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to look up organization for audit event")
		}
		event.OrganizationID = orgID
	}
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(eventType)).
			Warn("Failed to record authentication event")
	}
}
