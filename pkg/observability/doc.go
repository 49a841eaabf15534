// Package observability provides structured logging, Prometheus metrics, health checks and
// OpenTelemetry tracing for the campus server.
//
// # Structured Logging
//
// Logging is backed by logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("organization_id", orgID).Info("tenant resolved")
//
// Request handlers should use FromContext, which adds the request and principal IDs
// set by the middleware chain.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("deny", "outside_scope", "parent").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Spans are started from Tracer().
package observability
