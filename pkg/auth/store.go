package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PrincipalStore persists principals
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	ListPrincipals(ctx context.Context, ids []uuid.UUID) ([]*Principal, error)
	UpdatePrincipal(ctx context.Context, p *Principal) error
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Store is the persistence the auth package needs
type Store interface {
	PrincipalStore
	TokenStore
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const principalColumns = `id, email, full_name, password_hash, is_active, last_login_at, created_at, updated_at`

const tokenColumns = `id, principal_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason`

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreatePrincipal inserts a new principal
func (s *PostgresStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Email = NormalizeEmail(p.Email)

	query := `
		INSERT INTO principals (id, email, full_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, p.ID, p.Email, p.FullName, p.PasswordHash, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

// GetPrincipal retrieves a principal by ID
func (s *PostgresStore) GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return s.getPrincipal(ctx, "id = $1", id)
}

// GetPrincipalByEmail retrieves a principal by email
func (s *PostgresStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return s.getPrincipal(ctx, "email = $1", NormalizeEmail(email))
}

func (s *PostgresStore) getPrincipal(ctx context.Context, where string, arg interface{}) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE ` + where
	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return p, nil
}

// ListPrincipals returns the principals with the given IDs, ordered by email.
// Unknown IDs are skipped.
func (s *PostgresStore) ListPrincipals(ctx context.Context, ids []uuid.UUID) ([]*Principal, error) {
	principals := make([]*Principal, 0, len(ids))
	if len(ids) == 0 {
		return principals, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = ANY($1::uuid[]) ORDER BY email`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// UpdatePrincipal writes the name, password hash and active flag of a principal
func (s *PostgresStore) UpdatePrincipal(ctx context.Context, p *Principal) error {
	query := `
		UPDATE principals SET full_name = $1, password_hash = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, p.FullName, p.PasswordHash, p.IsActive, p.ID).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update principal: %w", err)
	}
	return nil
}

func scanPrincipal(scanner interface{ Scan(...interface{}) error }) (*Principal, error) {
	p := &Principal{}
	var fullName sql.NullString
	var lastLogin sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.Email, &fullName, &p.PasswordHash, &p.IsActive, &lastLogin, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.FullName = fullName.String
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	return p, nil
}

// RecordLogin sets the last login time of a principal
func (s *PostgresStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE principals SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// CreateToken inserts a token
func (s *PostgresStore) CreateToken(ctx context.Context, t *APIToken) error {
	query := `
		INSERT INTO api_tokens (id, principal_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, t.PrincipalID, t.TokenHash, t.TokenPrefix, t.Name, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetTokenByHash retrieves a token by the hash of its plaintext
func (s *PostgresStore) GetTokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE token_hash = $1`
	t, err := scanToken(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// TouchToken records a use of the token
func (s *PostgresStore) TouchToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, at, id)
	return err
}

// RevokeToken marks a token revoked; revoking twice keeps the first revocation
func (s *PostgresStore) RevokeToken(ctx context.Context, id, revokedBy uuid.UUID, reason string, at time.Time) error {
	query := `
		UPDATE api_tokens SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at, revokedBy, reason, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM api_tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		if !exists {
			return ErrTokenNotFound
		}
	}
	return nil
}

// ListTokens lists the tokens of a principal, newest first
func (s *PostgresStore) ListTokens(ctx context.Context, principalID uuid.UUID) ([]*APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE principal_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*APIToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteExpiredTokens removes tokens that expired before the given time
func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

func scanToken(scanner interface{ Scan(...interface{}) error }) (*APIToken, error) {
	t := &APIToken{}
	var name, reason sql.NullString
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var revokedBy uuid.NullUUID
	err := scanner.Scan(
		&t.ID, &t.PrincipalID, &t.TokenHash, &t.TokenPrefix, &name, &expiresAt, &lastUsedAt,
		&t.CreatedAt, &revokedAt, &revokedBy, &reason,
	)
	if err != nil {
		return nil, err
	}
	t.Name = name.String
	t.RevokeReason = reason.String
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if revokedBy.Valid {
		t.RevokedBy = &revokedBy.UUID
	}
	return t, nil
}
