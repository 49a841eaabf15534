package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Directory stores organizations and schools
type Directory interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	GetOrganizationByDomain(ctx context.Context, domain string) (*Organization, error)
	SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error
	DeactivateOrganization(ctx context.Context, id uuid.UUID) error

	CreateSchool(ctx context.Context, school *School) error
	GetSchool(ctx context.Context, id uuid.UUID) (*School, error)
	ListSchools(ctx context.Context, orgID uuid.UUID) ([]*School, error)
	UpdateSchool(ctx context.Context, id uuid.UUID, update *SchoolUpdate) (*School, error)
	DeleteSchool(ctx context.Context, id uuid.UUID) error
}

// PostgresDirectory implements Directory using PostgreSQL
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a new PostgresDirectory
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const organizationColumns = `id, name, slug, domain, subscription_status, owner_id, is_active, settings, created_at, updated_at`

const schoolColumns = `id, organization_id, name, slug, config, is_published, is_active, created_at, updated_at`

// CreateOrganization inserts a new organization. ID, slug and status are defaulted when empty.
func (d *PostgresDirectory) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Slug == "" {
		org.Slug = GenerateSlug(org.Name)
	}
	if !ValidSlug(org.Slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, org.Slug)
	}
	if org.SubscriptionStatus == "" {
		org.SubscriptionStatus = SubscriptionTrial
	}
	if org.Domain != nil {
		domain := normalizeHost(*org.Domain)
		org.Domain = &domain
	}
	org.IsActive = true

	settingsJSON, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO organizations (id, name, slug, domain, subscription_status, owner_id, is_active, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = d.db.QueryRowContext(ctx, query, org.ID, org.Name, org.Slug, org.Domain,
		org.SubscriptionStatus, org.OwnerID, org.IsActive, settingsJSON).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", uniqueViolation(err))
	}
	return nil
}

// GetOrganization retrieves an organization by ID
func (d *PostgresDirectory) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return d.getOrganization(ctx, "id = $1", id)
}

// GetOrganizationBySlug retrieves an organization by slug
func (d *PostgresDirectory) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return d.getOrganization(ctx, "slug = $1", strings.ToLower(slug))
}

// GetOrganizationByDomain retrieves an organization by its custom domain
func (d *PostgresDirectory) GetOrganizationByDomain(ctx context.Context, domain string) (*Organization, error) {
	return d.getOrganization(ctx, "domain = $1", normalizeHost(domain))
}

func (d *PostgresDirectory) getOrganization(ctx context.Context, where string, arg interface{}) (*Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE ` + where

	org := &Organization{}
	var settingsJSON []byte
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Domain, &org.SubscriptionStatus, &org.OwnerID,
		&org.IsActive, &settingsJSON, &org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return org, nil
}

// SetSubscriptionStatus changes the subscription status of an organization
func (d *PostgresDirectory) SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid subscription status %q", status)
	}
	query := `UPDATE organizations SET subscription_status = $1, updated_at = NOW() WHERE id = $2`
	return d.execOne(ctx, ErrOrganizationNotFound, query, status, id)
}

// DeactivateOrganization soft-deletes an organization; it stops resolving as a tenant
func (d *PostgresDirectory) DeactivateOrganization(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE organizations SET is_active = false, updated_at = NOW() WHERE id = $1`
	return d.execOne(ctx, ErrOrganizationNotFound, query, id)
}

// CreateSchool inserts a school under an existing organization
func (d *PostgresDirectory) CreateSchool(ctx context.Context, school *School) error {
	if school.OrganizationID == uuid.Nil {
		return errors.New("school requires an organization")
	}
	if school.ID == uuid.Nil {
		school.ID = uuid.New()
	}
	if school.Slug == "" {
		school.Slug = GenerateSlug(school.Name)
	}
	school.IsActive = true

	configJSON, err := json.Marshal(school.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal school config: %w", err)
	}

	query := `
		INSERT INTO schools (id, organization_id, name, slug, config, is_published, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = d.db.QueryRowContext(ctx, query, school.ID, school.OrganizationID, school.Name,
		school.Slug, configJSON, school.IsPublished, school.IsActive).
		Scan(&school.CreatedAt, &school.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create school: %w", uniqueViolation(err))
	}
	return nil
}

// GetSchool retrieves a school that has not been deleted
func (d *PostgresDirectory) GetSchool(ctx context.Context, id uuid.UUID) (*School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE id = $1 AND is_active = true`
	school, err := scanSchool(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get school: %w", err)
	}
	return school, nil
}

// ListSchools lists the active schools of an organization
func (d *PostgresDirectory) ListSchools(ctx context.Context, orgID uuid.UUID) ([]*School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools
		WHERE organization_id = $1 AND is_active = true
		ORDER BY created_at ASC`
	rows, err := d.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schools: %w", err)
	}
	defer rows.Close()

	var schools []*School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan school: %w", err)
		}
		schools = append(schools, school)
	}
	return schools, rows.Err()
}

// UpdateSchool applies the non-nil fields of update
func (d *PostgresDirectory) UpdateSchool(ctx context.Context, id uuid.UUID, update *SchoolUpdate) (*School, error) {
	var sets []string
	var args []interface{}
	argPos := 1

	if update.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *update.Name)
		argPos++
	}
	if update.Config != nil {
		configJSON, err := json.Marshal(update.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal school config: %w", err)
		}
		sets = append(sets, fmt.Sprintf("config = $%d", argPos))
		args = append(args, configJSON)
		argPos++
	}
	if update.IsPublished != nil {
		sets = append(sets, fmt.Sprintf("is_published = $%d", argPos))
		args = append(args, *update.IsPublished)
		argPos++
	}
	if len(sets) == 0 {
		return d.GetSchool(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE schools SET %s WHERE id = $%d AND is_active = true RETURNING %s`,
		strings.Join(sets, ", "), argPos, schoolColumns)
	school, err := scanSchool(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update school: %w", err)
	}
	return school, nil
}

// DeleteSchool soft-deletes a school
func (d *PostgresDirectory) DeleteSchool(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE schools SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true`
	return d.execOne(ctx, ErrSchoolNotFound, query, id)
}

func (d *PostgresDirectory) execOne(ctx context.Context, notFound error, query string, args ...interface{}) error {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func scanSchool(scanner interface{ Scan(...interface{}) error }) (*School, error) {
	school := &School{}
	var configJSON []byte
	err := scanner.Scan(
		&school.ID, &school.OrganizationID, &school.Name, &school.Slug, &configJSON,
		&school.IsPublished, &school.IsActive, &school.CreatedAt, &school.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &school.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal school config: %w", err)
		}
	}
	return school, nil
}

// uniqueViolation maps Postgres unique-constraint errors onto the package sentinels
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	if strings.Contains(pqErr.Constraint, "domain") {
		return ErrDomainTaken
	}
	return ErrSlugTaken
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
