package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/config"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/storage/objectstore"
	"github.com/platinummonkey/campus/pkg/storage/postgres"
	"github.com/platinummonkey/campus/pkg/tenants"
)

// ErrNoArchive is returned when no object store is configured
var ErrNoArchive = errors.New("audit archive bucket is not configured")

// Opener connects the stores a command works on
type Opener func(ctx context.Context, configFile string) (*Backend, error)

// Backend is the set of stores behind the admin commands. DB is nil for
// in-memory backends; Archive is nil without an S3 bucket.
type Backend struct {
	DB         *sql.DB
	Directory  tenants.Directory
	Principals auth.PrincipalStore
	Auth       *auth.Authenticator
	Roles      *rbac.Registry
	Orgs       *orgs.Service
	AuditStore audit.Store
	Audit      audit.Logger
	Archive    audit.ObjectWriter
	Logger     *observability.Logger

	closers []func() error
}

// Context returns ctx carrying the backend's audit logger and logger
func (b *Backend) Context(ctx context.Context) context.Context {
	ctx = audit.WithLogger(ctx, b.Audit)
	return observability.WithLogger(ctx, b.Logger)
}

// Close releases every connection the backend opened
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenBackend loads the configuration and connects to PostgreSQL and, when
// configured, the S3 archive bucket
func OpenBackend(ctx context.Context, configFile string) (*Backend, error) {
	if configFile == "" {
		configFile = os.Getenv(config.ConfigFileEnv)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stderr)

	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	b := &Backend{DB: db, Logger: logger, closers: []func() error{db.Close}}

	store := auth.NewPostgresStore(db)
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}

	b.Directory = tenants.NewPostgresDirectory(db)
	b.Principals = store
	b.Roles = rbac.NewRegistry(rbac.NewSQLStore(db))
	b.Auth = auth.NewAuthenticator(store, auth.NewTokenManager(store), cfg.Auth.SessionTTL).WithOrganizationLookup(b.Roles)
	b.Orgs = orgs.NewService(b.Directory, b.Roles)
	b.AuditStore = dbAudit
	b.Audit = dbAudit

	if cfg.Storage.S3Bucket != "" {
		archive, err := objectstore.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Archive = archive
	}
	return b, nil
}

// withBackend opens the backend, runs fn and closes it
func (o *RootOptions) withBackend(ctx context.Context, fn func(ctx context.Context, b *Backend) error) error {
	b, err := o.Open(ctx, o.ConfigFile)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b.Context(ctx), b)
}
