package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/campus/pkg/storage"
)

// Open connects to PostgreSQL, sizes the pool and pings the server
func Open(ctx context.Context, cfg storage.Config) (*sql.DB, error) {
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	Configure(db, cfg)

	timeout := cfg.PostgresTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Configure applies the pool settings of cfg to db
func Configure(db *sql.DB, cfg storage.Config) {
	if cfg.PostgresMaxConns > 0 {
		db.SetMaxOpenConns(cfg.PostgresMaxConns)
	}
	if cfg.PostgresMinConns > 0 {
		db.SetMaxIdleConns(cfg.PostgresMinConns)
	}
	if cfg.PostgresMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.PostgresMaxLifetime)
	}
}
