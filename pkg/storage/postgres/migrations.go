package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/campus/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns every schema migration in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and schools tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(63) NOT NULL UNIQUE,
					domain VARCHAR(255) UNIQUE,
					subscription_status VARCHAR(20) NOT NULL DEFAULT 'trial',
					owner_id UUID,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS schools (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(63) NOT NULL,
					config JSONB NOT NULL DEFAULT '{}',
					is_published BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, slug)
				);

				CREATE INDEX IF NOT EXISTS idx_schools_organization_id ON schools(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create principals and api_tokens tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS principals (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					last_login_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS api_tokens (
					id UUID PRIMARY KEY,
					principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
					token_hash CHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(16) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					expires_at TIMESTAMPTZ,
					last_used_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMPTZ,
					revoked_by UUID,
					revoke_reason TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_principal_id ON api_tokens(principal_id);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_expires_at ON api_tokens(expires_at);
			`,
		},
		{
			Version:     3,
			Description: "Create roles and role_assignments tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					name VARCHAR(100) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					organization_id UUID REFERENCES organizations(id) ON DELETE CASCADE,
					level SMALLINT NOT NULL,
					permissions JSONB NOT NULL DEFAULT '{}',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by UUID,
					UNIQUE(organization_id, name)
				);

				CREATE TABLE IF NOT EXISTS role_assignments (
					id UUID PRIMARY KEY,
					principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id),
					organization_id UUID REFERENCES organizations(id) ON DELETE CASCADE,
					school_id UUID REFERENCES schools(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT FALSE,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					granted_by UUID,
					revoked_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_role_assignments_principal ON role_assignments(principal_id);
				CREATE INDEX IF NOT EXISTS idx_role_assignments_organization ON role_assignments(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id UUID PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					actor_id UUID,
					actor_role VARCHAR(100),
					organization_id UUID,
					school_id UUID,
					action VARCHAR(32),
					resource_type VARCHAR(64),
					resource_id VARCHAR(255),
					reason VARCHAR(64),
					message TEXT,
					request_id VARCHAR(64),
					ip_address VARCHAR(64),
					user_agent TEXT,
					metadata JSONB,
					changes JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_org_time ON audit_events(organization_id, timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);

				CREATE OR REPLACE FUNCTION audit_events_append_only() RETURNS trigger AS $$
				BEGIN
					RAISE EXCEPTION 'audit_events is append-only';
				END;
				$$ LANGUAGE plpgsql;

				DROP TRIGGER IF EXISTS audit_events_no_change ON audit_events;
				CREATE TRIGGER audit_events_no_change BEFORE UPDATE OR DELETE ON audit_events
					FOR EACH ROW EXECUTE FUNCTION audit_events_append_only();
			`,
		},
		{
			Version:     5,
			Description: "Create admission and transfer workflow tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS admission_applications (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					school_id UUID NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
					applicant_name VARCHAR(255) NOT NULL,
					grade_applied VARCHAR(32) NOT NULL DEFAULT '',
					owner_ids UUID[] NOT NULL DEFAULT '{}',
					status VARCHAR(32) NOT NULL,
					notes TEXT NOT NULL DEFAULT '',
					created_by UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_admissions_scope ON admission_applications(organization_id, school_id);
				CREATE INDEX IF NOT EXISTS idx_admissions_owners ON admission_applications USING GIN(owner_ids);

				CREATE TABLE IF NOT EXISTS student_transfers (
					id UUID PRIMARY KEY,
					student_id UUID NOT NULL,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					school_id UUID NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
					destination_organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					destination_school_id UUID NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
					reason TEXT NOT NULL DEFAULT '',
					owner_ids UUID[] NOT NULL DEFAULT '{}',
					status VARCHAR(32) NOT NULL,
					requested_by UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_transfers_source ON student_transfers(organization_id, school_id);
				CREATE INDEX IF NOT EXISTS idx_transfers_destination ON student_transfers(destination_organization_id, destination_school_id);

				CREATE TABLE IF NOT EXISTS workflow_transitions (
					id UUID PRIMARY KEY,
					workflow VARCHAR(32) NOT NULL,
					record_id UUID NOT NULL,
					from_status VARCHAR(32) NOT NULL,
					to_status VARCHAR(32) NOT NULL,
					actor_id UUID,
					note TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_workflow_transitions_record ON workflow_transitions(workflow, record_id, created_at);
			`,
		},
		{
			Version:     6,
			Description: "Require an organization on tenant audit events",
			SQL: `
				ALTER TABLE audit_events ADD CONSTRAINT audit_events_tenant_organization CHECK (
					organization_id IS NOT NULL
					OR event_type LIKE 'auth.%'
					OR event_type LIKE 'authz.%'
					OR event_type IN ('role.assign', 'role.revoke')
				) NOT VALID;
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations,
// each in its own transaction. Running it again is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger := observability.FromContext(ctx)

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)
		if err := apply(ctx, db, migration); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
