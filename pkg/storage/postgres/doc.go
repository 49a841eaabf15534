// Package postgres opens the PostgreSQL pool and owns the schema.
//
//	db, err := postgres.Open(ctx, cfg.Storage)
//	if err != nil {
//		return err
//	}
//	if err := postgres.Migrate(ctx, db); err != nil {
//		return err
//	}
//
// Migrations are versioned and recorded in schema_migrations. audit_events
// rejects UPDATE and DELETE through a trigger.
package postgres
