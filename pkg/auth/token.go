package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenPrefix identifies campus tokens
	TokenPrefix = "campus_"
	// TokenLength is the number of random bytes in a token (256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: campus_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), tg.ExtractPrefix(fullToken), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}
	return token
}

// TokenStore persists API tokens by hash
type TokenStore interface {
	CreateToken(ctx context.Context, token *APIToken) error
	GetTokenByHash(ctx context.Context, hash string) (*APIToken, error)
	TouchToken(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeToken(ctx context.Context, id, revokedBy uuid.UUID, reason string, at time.Time) error
	ListTokens(ctx context.Context, principalID uuid.UUID) ([]*APIToken, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// TokenManager manages API token lifecycle
type TokenManager struct {
	generator *TokenGenerator
	store     TokenStore
	now       func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(store TokenStore) *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateToken issues a token for principalID. A zero ttl never expires.
// The plaintext token is returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, principalID uuid.UUID, name string, ttl time.Duration) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		ID:          uuid.New(),
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		CreatedAt:   tm.now(),
	}
	if ttl > 0 {
		expiresAt := apiToken.CreatedAt.Add(ttl)
		apiToken.ExpiresAt = &expiresAt
	}

	if err := tm.store.CreateToken(ctx, apiToken); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}
	return apiToken, token, nil
}

// ValidateToken returns the stored token for a presented bearer token. It
// fails for unknown, revoked and expired tokens and records the use.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	apiToken, err := tm.store.GetTokenByHash(ctx, tm.generator.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := tm.now()
	if err := apiToken.Usable(now); err != nil {
		return nil, err
	}

	if err := tm.store.TouchToken(ctx, apiToken.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record token use: %w", err)
	}
	apiToken.LastUsedAt = &now
	return apiToken, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, revokedBy uuid.UUID, reason string) error {
	return tm.store.RevokeToken(ctx, tokenID, revokedBy, reason, tm.now())
}

// ListPrincipalTokens lists all tokens of a principal, revoked ones included
func (tm *TokenManager) ListPrincipalTokens(ctx context.Context, principalID uuid.UUID) ([]*APIToken, error) {
	return tm.store.ListTokens(ctx, principalID)
}

// CleanupExpiredTokens deletes tokens that expired before now
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return tm.store.DeleteExpiredTokens(ctx, tm.now())
}
