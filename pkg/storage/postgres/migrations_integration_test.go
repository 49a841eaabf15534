//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/storage"
	"github.com/platinummonkey/campus/pkg/tenants"
	"github.com/platinummonkey/campus/pkg/workflow"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("campus_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.PostgresURL = connStr
	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIntegration_MigrateAndStores(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are idempotent")

	dir := tenants.NewPostgresDirectory(db)
	org := &tenants.Organization{Name: "Greenfield Trust"}
	require.NoError(t, dir.CreateOrganization(ctx, org))
	school := &tenants.School{OrganizationID: org.ID, Name: "Greenfield North"}
	require.NoError(t, dir.CreateSchool(ctx, school))

	dup := &tenants.Organization{Name: "Greenfield Trust"}
	assert.ErrorIs(t, dir.CreateOrganization(ctx, dup), tenants.ErrSlugTaken)

	roles := rbac.NewSQLStore(db)
	require.NoError(t, roles.SeedSystemRoles(ctx))
	require.NoError(t, roles.SeedSystemRoles(ctx), "seeding is idempotent")
	admin, err := roles.GetRole(ctx, rbac.SystemRoleID(rbac.RoleOrgAdmin))
	require.NoError(t, err)
	assert.True(t, admin.IsSystem)

	store := workflow.NewPostgresStore(db)
	parent := uuid.New()
	app := &workflow.Application{
		OrganizationID: org.ID,
		SchoolID:       school.ID,
		ApplicantName:  "Asha Rao",
		OwnerIDs:       []uuid.UUID{parent},
		Status:         workflow.AdmissionDraft,
		CreatedBy:      parent,
	}
	require.NoError(t, store.CreateApplication(ctx, app))

	orgID := org.ID
	owned, err := store.ListApplications(ctx, rbac.NewScopeFilter(rbac.FilterOwnedBy, &orgID, nil, parent), 10, 0)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, app.ID, owned[0].ID)

	others, err := store.ListApplications(ctx, rbac.NewScopeFilter(rbac.FilterOwnedBy, &orgID, nil, uuid.New()), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, others)

	logger, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	event := audit.NewEvent(ctx, audit.EventTypeAdmissionCreate, audit.EventStatusSuccess)
	event.OrganizationID = &orgID
	require.NoError(t, logger.Log(ctx, event))

	_, err = db.ExecContext(ctx, `UPDATE audit_events SET message = 'edited' WHERE id = $1`, event.ID)
	assert.Error(t, err, "audit events are append-only")
	_, err = db.ExecContext(ctx, `DELETE FROM audit_events WHERE id = $1`, event.ID)
	assert.Error(t, err, "audit events are append-only")

	_, err = db.ExecContext(ctx,
		`INSERT INTO audit_events (id, timestamp, event_type, status) VALUES ($1, NOW(), 'school.update', 'success')`,
		uuid.New())
	assert.Error(t, err, "tenant events need an organization")
	_, err = db.ExecContext(ctx,
		`INSERT INTO audit_events (id, timestamp, event_type, status) VALUES ($1, NOW(), 'auth.login', 'success')`,
		uuid.New())
	assert.NoError(t, err)
}
