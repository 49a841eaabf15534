package rbac

import (
	"context"
	"database/sql"
	"testing"
)

// SQLiteSchema is the roles schema in the SQLite dialect, used by in-memory test databases.
// The PostgreSQL schema lives in pkg/storage/postgres.
const SQLiteSchema = `
	CREATE TABLE roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT,
		organization_id TEXT,
		level INTEGER NOT NULL,
		permissions TEXT NOT NULL DEFAULT '{}',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		created_by TEXT,
		UNIQUE(organization_id, name)
	);

	CREATE TABLE role_assignments (
		id TEXT PRIMARY KEY,
		principal_id TEXT NOT NULL,
		role_id TEXT NOT NULL REFERENCES roles(id),
		organization_id TEXT,
		school_id TEXT,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		granted_at TIMESTAMP NOT NULL,
		granted_by TEXT,
		revoked_at TIMESTAMP
	);

	CREATE INDEX idx_role_assignments_principal ON role_assignments(principal_id);
`

// NewTestStore applies SQLiteSchema to db, seeds the system roles and returns a store.
// The caller opens db and imports the sqlite3 driver.
func NewTestStore(t testing.TB, db *sql.DB) *SQLStore {
	t.Helper()

	// every new connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(SQLiteSchema); err != nil {
		t.Fatalf("Failed to create rbac schema: %v", err)
	}
	store := NewSQLStore(db)
	if err := store.SeedSystemRoles(context.Background()); err != nil {
		t.Fatalf("Failed to seed system roles: %v", err)
	}
	return store
}
