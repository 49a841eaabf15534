package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists roles and role assignments
type Store interface {
	SeedSystemRoles(ctx context.Context) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	GetRoleByName(ctx context.Context, orgID *uuid.UUID, name RoleName) (*Role, error)
	ListRoles(ctx context.Context, orgID uuid.UUID) ([]*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeactivateRole(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, a *RoleAssignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*RoleAssignment, error)
	ListAssignments(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error)
	ListOrganizationAssignments(ctx context.Context, orgID uuid.UUID) ([]*RoleAssignment, error)
	RevokeAssignment(ctx context.Context, id uuid.UUID) error
	SetActiveAssignment(ctx context.Context, principalID, assignmentID uuid.UUID) error
}

// SQLStore implements Store with portable SQL; it runs on PostgreSQL and SQLite
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a new RBAC store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const roleColumns = `id, name, display_name, description, organization_id, level, permissions, is_system, is_active, created_at, updated_at, created_by`

// SeedSystemRoles upserts the built-in roles so their IDs exist for assignments
func (s *SQLStore) SeedSystemRoles(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO roles (id, name, display_name, description, organization_id, level, permissions, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, '', NULL, $4, $5, TRUE, TRUE, $6, $7)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name,
			level = excluded.level, permissions = excluded.permissions, updated_at = excluded.updated_at
	`
	now := s.now()
	for _, role := range SystemRoles() {
		permissionsJSON, err := json.Marshal(role.Permissions)
		if err != nil {
			return fmt.Errorf("failed to marshal permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, role.ID, role.Name, role.DisplayName,
			int(role.Level), string(permissionsJSON), now, now); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
		}
	}
	return tx.Commit()
}

// CreateRole creates a new role
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO roles (id, name, display_name, description, organization_id, level, permissions, is_system, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	now := s.now()
	_, err = s.db.ExecContext(ctx, query,
		role.ID, role.Name, role.DisplayName, role.Description, role.OrganizationID,
		int(role.Level), string(permissionsJSON), role.IsSystem, role.IsActive, now, now, role.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *SQLStore) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByName finds an organization's custom role by name, falling back to system roles
func (s *SQLStore) GetRoleByName(ctx context.Context, orgID *uuid.UUID, name RoleName) (*Role, error) {
	if name.IsSystem() {
		return s.GetRole(ctx, SystemRoleID(name))
	}
	if orgID == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1 AND organization_id = $2`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, name, *orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles returns the system roles and the active custom roles of an organization
func (s *SQLStore) ListRoles(ctx context.Context, orgID uuid.UUID) ([]*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles
		WHERE is_system = TRUE OR (organization_id = $1 AND is_active = TRUE)
		ORDER BY is_system DESC, level DESC, name ASC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates display fields and permissions. System rows are never touched.
func (s *SQLStore) UpdateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	query := `
		UPDATE roles SET display_name = $1, description = $2, permissions = $3, updated_at = $4
		WHERE id = $5 AND is_system = FALSE
	`
	now := s.now()
	result, err := s.db.ExecContext(ctx, query, role.DisplayName, role.Description, string(permissionsJSON), now, role.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, role.ID)
	}
	role.UpdatedAt = now
	return nil
}

// DeactivateRole marks a custom role inactive
func (s *SQLStore) DeactivateRole(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE roles SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_system = FALSE`
	result, err := s.db.ExecContext(ctx, query, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	return nil
}

func scanRole(scanner interface{ Scan(...interface{}) error }) (*Role, error) {
	var role Role
	var description sql.NullString
	var level int
	var permissionsJSON []byte

	err := scanner.Scan(
		&role.ID, &role.Name, &role.DisplayName, &description, &role.OrganizationID,
		&level, &permissionsJSON, &role.IsSystem, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt, &role.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	role.Description = description.String
	role.Level = Level(level)

	if err := json.Unmarshal(permissionsJSON, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &role, nil
}

// CreateAssignment stores a new role assignment
func (s *SQLStore) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (id, principal_id, role_id, organization_id, school_id, is_active, granted_at, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.PrincipalID, a.RoleID, a.OrganizationID,
		a.SchoolID, a.IsActive, a.GrantedAt, a.GrantedBy)
	if err != nil {
		return fmt.Errorf("failed to create role assignment: %w", err)
	}
	return nil
}

const assignmentSelect = `
	SELECT a.id, a.principal_id, a.role_id, a.organization_id, a.school_id, a.is_active,
	       a.granted_at, a.granted_by, a.revoked_at,
	       r.id, r.name, r.display_name, r.description, r.organization_id, r.level, r.permissions,
	       r.is_system, r.is_active, r.created_at, r.updated_at, r.created_by
	FROM role_assignments a
	JOIN roles r ON r.id = a.role_id
`

// GetAssignment returns an assignment with its role
func (s *SQLStore) GetAssignment(ctx context.Context, id uuid.UUID) (*RoleAssignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, assignmentSelect+` WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}
	return a, nil
}

// ListAssignments returns the non-revoked assignments of a principal with their roles
func (s *SQLStore) ListAssignments(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error) {
	return s.listAssignments(ctx, `a.principal_id = $1`, principalID)
}

// ListOrganizationAssignments returns the live assignments inside an organization
func (s *SQLStore) ListOrganizationAssignments(ctx context.Context, orgID uuid.UUID) ([]*RoleAssignment, error) {
	return s.listAssignments(ctx, `a.organization_id = $1`, orgID)
}

func (s *SQLStore) listAssignments(ctx context.Context, where string, arg interface{}) ([]*RoleAssignment, error) {
	query := assignmentSelect + ` WHERE ` + where + ` AND a.revoked_at IS NULL ORDER BY a.granted_at ASC`
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	var out []*RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(scanner interface{ Scan(...interface{}) error }) (*RoleAssignment, error) {
	var a RoleAssignment
	var role Role
	var description sql.NullString
	var level int
	var permissionsJSON []byte

	err := scanner.Scan(
		&a.ID, &a.PrincipalID, &a.RoleID, &a.OrganizationID, &a.SchoolID, &a.IsActive,
		&a.GrantedAt, &a.GrantedBy, &a.RevokedAt,
		&role.ID, &role.Name, &role.DisplayName, &description, &role.OrganizationID, &level,
		&permissionsJSON, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt, &role.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	role.Description = description.String
	role.Level = Level(level)
	if err := json.Unmarshal(permissionsJSON, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	a.Role = &role
	return &a, nil
}

// RevokeAssignment ends an assignment; the row is kept for history
func (s *SQLStore) RevokeAssignment(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE role_assignments SET revoked_at = $1, is_active = FALSE WHERE id = $2 AND revoked_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke role assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// SetActiveAssignment flags one assignment active and clears the flag on the principal's others
func (s *SQLStore) SetActiveAssignment(ctx context.Context, principalID, assignmentID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE role_assignments SET is_active = TRUE WHERE id = $1 AND principal_id = $2 AND revoked_at IS NULL`,
		assignmentID, principalID)
	if err != nil {
		return fmt.Errorf("failed to activate role assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAssignmentNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE role_assignments SET is_active = FALSE WHERE principal_id = $1 AND id <> $2`,
		principalID, assignmentID); err != nil {
		return fmt.Errorf("failed to clear active role assignments: %w", err)
	}
	return tx.Commit()
}
