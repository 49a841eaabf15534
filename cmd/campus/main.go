package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/campus/pkg/api"
	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/config"
	"github.com/platinummonkey/campus/pkg/middleware"
	"github.com/platinummonkey/campus/pkg/notify"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/storage/postgres"
	"github.com/platinummonkey/campus/pkg/storage/redisconn"
	"github.com/platinummonkey/campus/pkg/tenants"
	"github.com/platinummonkey/campus/pkg/workflow"
)

var (
	configFile     = flag.String("config", os.Getenv(config.ConfigFileEnv), "Path to the YAML configuration file")
	skipMigrations = flag.Bool("skip-migrations", false, "Do not apply database migrations on startup")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("campus: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.WithField("port", cfg.Server.Port).Info("Starting campus server")

	if err := rbac.CheckMonotonic(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })

	roleStore := rbac.NewSQLStore(db)
	if !*skipMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		if err := roleStore.SeedSystemRoles(ctx); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = redisconn.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	auditStore, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := newAuditLogger(cfg, auditStore, logger, metrics)
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })

	directory := tenants.NewPostgresDirectory(db)
	resolver := tenants.NewResolver(directory, tenants.ResolverConfig{
		BaseDomain:           cfg.Tenancy.BaseDomain,
		AllowExpiredReadOnly: cfg.Tenancy.AllowExpiredReadOnly,
	})
	if metrics != nil {
		resolver = resolver.WithObserver(func(source tenants.Source, result string) {
			metrics.TenantResolutionsTotal.WithLabelValues(string(source), result).Inc()
		})
	}

	principals := auth.NewPostgresStore(db)
	tokens := auth.NewTokenManager(principals)
	roles := rbac.NewRegistry(roleStore)
	authenticator := auth.NewAuthenticator(principals, tokens, cfg.Auth.SessionTTL).WithOrganizationLookup(roles)
	point := authz.NewDecisionPoint(auditLogger, metrics)

	var notifier notify.Notifier = notify.Nop{}
	if redisClient != nil {
		var dropped prometheus.Counter
		if metrics != nil {
			dropped = metrics.NotificationsDropped
		}
		async := notify.NewAsync(notify.NewRedisNotifier(redisClient, cfg.Notify.Channel), notify.AsyncConfig{
			Workers:   cfg.Notify.Workers,
			QueueSize: cfg.Notify.QueueSize,
			Timeout:   cfg.Notify.Timeout,
		}, logger, dropped)
		notifier = async
		shutdown.Register("notify", func(context.Context) error { return async.Close(cfg.Notify.Timeout) })
	}

	loginLimiter := newLoginLimiter(ctx, cfg, redisClient)

	server := api.NewServer(api.Config{
		Headers:          cfg.Tenancy.Headers(),
		ActiveRoleHeader: cfg.Tenancy.ActiveRoleHeader,
		TrustProxy:       cfg.Server.TrustProxy,
		CORSOrigins:      cfg.Server.CORSOrigins,
	}, api.Services{
		Directory:    directory,
		Resolver:     resolver,
		Auth:         authenticator,
		Roles:        roles,
		Authz:        point,
		Workflows:    workflow.NewService(workflow.NewPostgresStore(db), point, directory, notifier, metrics),
		Orgs:         orgs.NewService(directory, roles),
		AuditStore:   auditStore,
		Audit:        auditLogger,
		LoginLimiter: loginLimiter,
		Logger:       logger,
		Metrics:      metrics,
	})

	var cleaned prometheus.Counter
	if metrics != nil {
		cleaned = metrics.TokensCleanedUpTotal
	}
	scheduler := cron.New()
	if _, err := auth.ScheduleCleanup(scheduler, cfg.Auth.CleanupSchedule, auth.NewCleanupJob(tokens, cleaned, logger)); err != nil {
		return err
	}
	scheduler.Start()
	shutdown.Register("cron", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: observability.RecoveryMiddleware(logger)(healthMux),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	if *configFile != "" {
		g.Go(func() error {
			return config.Watch(gctx, *configFile, logger, func(updated *config.Config) {
				logger.SetLevel(updated.Observability.Level())
				logger.WithField("level", updated.Observability.Level().String()).Info("Log level reloaded")
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		// servers stop before the collaborators they depend on
		err := errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
		return errors.Join(err, shutdown.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(cfg *config.Config) *observability.Logger {
	if cfg.Observability.LogFormat == "text" {
		return observability.NewTextLogger(cfg.Observability.Level(), os.Stdout)
	}
	return observability.NewLogger(cfg.Observability.Level(), os.Stdout)
}

// newAuditLogger fans events out to the configured sinks
func newAuditLogger(cfg *config.Config, dbLogger *audit.DBLogger, logger *observability.Logger, metrics *observability.Metrics) *audit.MultiLogger {
	var sinks []audit.Sink
	if cfg.Audit.DBEnabled {
		sinks = append(sinks, audit.Sink{Name: "database", Logger: dbLogger})
	}
	if cfg.Audit.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.FilePath})
		if err != nil {
			logger.WithError(err).WithField("path", cfg.Audit.FilePath).Error("Audit file sink disabled")
		} else {
			sinks = append(sinks, audit.Sink{Name: "file", Logger: fileLogger})
		}
	}
	if cfg.Audit.LogSink {
		sinks = append(sinks, audit.Sink{Name: "log", Logger: audit.NewLogrusLogger(logger.Logrus().Logger)})
	}

	multi := audit.NewMultiLogger(sinks...)
	multi.OnError(func(sink string, event *audit.AuditEvent, err error) {
		logger.WithError(err).
			WithField("sink", sink).
			WithField("event_type", string(event.EventType)).
			Error("Failed to write audit event")
		if metrics != nil {
			metrics.AuditWriteErrorsTotal.WithLabelValues(sink).Inc()
		}
	})
	return multi
}

// newLoginLimiter shares login attempt counts through Redis when available
func newLoginLimiter(ctx context.Context, cfg *config.Config, client *redis.Client) middleware.Limiter {
	limits := middleware.LoginRateLimitConfig()
	if cfg.Auth.LoginRateLimit > 0 {
		limits.RequestsPerWindow = cfg.Auth.LoginRateLimit
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, limits, "campus:ratelimit")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}
