package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/audit"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *MemoryStore, *audit.MemoryLogger, context.Context) {
	t.Helper()
	store := NewMemoryStore()
	logger := audit.NewMemoryLogger()
	a := NewAuthenticator(store, NewTokenManager(store), time.Hour)
	return a, store, logger, audit.WithLogger(context.Background(), logger)
}

func TestAuthenticator_LoginAndAuthenticate(t *testing.T) {
	a, _, logger, ctx := newTestAuthenticator(t)

	registered, err := a.Register(ctx, " Priya@School.example ", "Priya Nair", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "priya@school.example", registered.Email)
	assert.NotEqual(t, "correct horse", registered.PasswordHash)

	p, token, plaintext, err := a.Login(ctx, "PRIYA@school.example", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, p.ID)
	assert.NotNil(t, p.LastLoginAt)
	require.NotNil(t, token.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *token.ExpiresAt, time.Minute)

	ac, err := a.Authenticate(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, ac.Principal.ID)
	assert.Equal(t, token.ID, ac.Token.ID)

	events := logger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAuthLogin, events[0].EventType)
	assert.Equal(t, registered.ID, *events[0].ActorID)
}

func TestAuthenticator_LoginFailures(t *testing.T) {
	a, store, logger, ctx := newTestAuthenticator(t)
	_, err := a.Register(ctx, "teacher@school.example", "", "s3cret-pass")
	require.NoError(t, err)

	_, _, _, err = a.Login(ctx, "teacher@school.example", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, _, err = a.Login(ctx, "nobody@school.example", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	inactive, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, store.CreatePrincipal(ctx, &Principal{Email: "gone@school.example", PasswordHash: inactive}))
	_, _, _, err = a.Login(ctx, "gone@school.example", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events := logger.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, audit.EventTypeAuthLoginFailed, e.EventType)
		assert.Equal(t, audit.EventStatusFailure, e.Status)
	}
	assert.NotNil(t, events[0].ActorID)
	assert.Nil(t, events[1].ActorID)
}

func TestAuthenticator_Register(t *testing.T) {
	a, _, _, ctx := newTestAuthenticator(t)

	_, err := a.Register(ctx, "short@school.example", "", "1234")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = a.Register(ctx, "  ", "", "long enough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Register(ctx, "dup@school.example", "", "long enough")
	require.NoError(t, err)
	_, err = a.Register(ctx, "DUP@school.example", "", "long enough")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthenticator_AuthenticateRejectsInactivePrincipal(t *testing.T) {
	a, store, _, ctx := newTestAuthenticator(t)
	p := &Principal{Email: "left@school.example"}
	require.NoError(t, store.CreatePrincipal(ctx, p))

	_, plaintext, err := a.Tokens().CreateToken(ctx, p.ID, "old", 0)
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrPrincipalInactive)

	_, orphan, err := a.Tokens().CreateToken(ctx, uuid.New(), "orphan", 0)
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, orphan)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("open sesame")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "open sesame"))
	assert.ErrorIs(t, CheckPassword(hash, "open sesame!"), ErrInvalidCredentials)
	assert.Error(t, CheckPassword("", "open sesame"))
}

type stubOrganizations map[uuid.UUID]uuid.UUID

func (s stubOrganizations) PrimaryOrganization(_ context.Context, principalID uuid.UUID) (*uuid.UUID, error) {
	if orgID, ok := s[principalID]; ok {
		return &orgID, nil
	}
	return nil, nil
}

func TestAuthenticator_LoginEventsCarryOrganization(t *testing.T) {
	a, _, logger, ctx := newTestAuthenticator(t)
	p, err := a.Register(ctx, "head@school.example", "Head", "correct horse")
	require.NoError(t, err)
	orgID := uuid.New()
	a.WithOrganizationLookup(stubOrganizations{p.ID: orgID})

	_, _, _, err = a.Login(ctx, "head@school.example", "correct horse")
	require.NoError(t, err)
	_, _, _, err = a.Login(ctx, "nobody@school.example", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	events := logger.Events()
	require.Len(t, events, 2)
	assert.Equal(t, &orgID, events[0].OrganizationID)
	assert.Nil(t, events[1].OrganizationID)
}

func TestAuthenticator_ChangePassword(t *testing.T) {
	a, _, logger, ctx := newTestAuthenticator(t)
	p, err := a.Register(ctx, "staff@school.example", "", "correct horse")
	require.NoError(t, err)

	err = a.ChangePassword(ctx, p.ID, "wrong horse", "battery staple")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	err = a.ChangePassword(ctx, p.ID, "correct horse", "1234")
	assert.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, a.ChangePassword(ctx, p.ID, "correct horse", "battery staple"))

	_, _, _, err = a.Login(ctx, "staff@school.example", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = a.Login(ctx, "staff@school.example", "battery staple")
	require.NoError(t, err)

	var changes []*audit.AuditEvent
	for _, e := range logger.Events() {
		if e.EventType == audit.EventTypeAuthPassword {
			changes = append(changes, e)
		}
	}
	require.Len(t, changes, 2)
	assert.Equal(t, audit.EventStatusFailure, changes[0].Status)
	assert.Equal(t, audit.EventStatusSuccess, changes[1].Status)
	assert.Equal(t, p.ID.String(), changes[1].ResourceID)
}

func TestAuthenticator_Deactivate(t *testing.T) {
	a, _, _, ctx := newTestAuthenticator(t)
	p, err := a.Register(ctx, "leaver@school.example", "", "correct horse")
	require.NoError(t, err)
	_, _, first, err := a.Login(ctx, "leaver@school.example", "correct horse")
	require.NoError(t, err)
	_, second, err := a.Tokens().CreateToken(ctx, p.ID, "integration", 0)
	require.NoError(t, err)

	admin := uuid.New()
	deactivated, err := a.Deactivate(ctx, p.ID, admin)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	for _, plaintext := range []string{first, second} {
		_, err = a.Authenticate(ctx, plaintext)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	}
	tokens, err := a.Tokens().ListPrincipalTokens(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	for _, tok := range tokens {
		assert.Equal(t, &admin, tok.RevokedBy)
		assert.Equal(t, "principal deactivated", tok.RevokeReason)
	}

	again, err := a.Deactivate(ctx, p.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, again.IsActive)

	_, _, _, err = a.Login(ctx, "leaver@school.example", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Deactivate(ctx, uuid.New(), admin)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestAuthenticator_Logout(t *testing.T) {
	a, _, logger, ctx := newTestAuthenticator(t)
	_, err := a.Register(ctx, "parent@school.example", "", "correct horse")
	require.NoError(t, err)
	_, _, plaintext, err := a.Login(ctx, "parent@school.example", "correct horse")
	require.NoError(t, err)

	ac, err := a.Authenticate(ctx, plaintext)
	require.NoError(t, err)
	require.NoError(t, a.Logout(ctx, ac))

	_, err = a.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, a.Logout(ctx, nil), ErrInvalidToken)

	events := logger.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTypeAuthTokenRevoke, events[1].EventType)
	assert.Equal(t, ac.Token.ID.String(), events[1].ResourceID)
}

func TestAuthenticator_UpdateProfileAndList(t *testing.T) {
	a, _, _, ctx := newTestAuthenticator(t)
	zara, err := a.Register(ctx, "zara@school.example", "Zara", "correct horse")
	require.NoError(t, err)
	amal, err := a.Register(ctx, "amal@school.example", "Amal", "correct horse")
	require.NoError(t, err)

	updated, err := a.UpdateProfile(ctx, zara.ID, "Zara Ahmed")
	require.NoError(t, err)
	assert.Equal(t, "Zara Ahmed", updated.FullName)

	listed, err := a.ListPrincipals(ctx, []uuid.UUID{zara.ID, uuid.New(), amal.ID})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, amal.ID, listed[0].ID)
	assert.Equal(t, "Zara Ahmed", listed[1].FullName)

	_, err = a.UpdateProfile(ctx, uuid.New(), "Nobody")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}
