package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control metrics
	AuthzDecisionsTotal     *prometheus.CounterVec
	TenantResolutionsTotal  *prometheus.CounterVec
	WorkflowTransitionTotal *prometheus.CounterVec

	// Side-channel collaborators
	AuditWriteErrorsTotal *prometheus.CounterVec
	NotificationsDropped   prometheus.Counter
	TokensCleanedUpTotal   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_authz_decisions_total",
				Help: "Access decisions by outcome, reason and role",
			},
			[]string{"decision", "reason", "role"},
		),
		TenantResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_tenant_resolutions_total",
				Help: "Tenant resolution attempts by matching hint and result",
			},
			[]string{"source", "result"},
		),
		WorkflowTransitionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_workflow_transitions_total",
				Help: "Applied admission and transfer transitions",
			},
			[]string{"workflow", "to"},
		),
		AuditWriteErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_audit_write_errors_total",
				Help: "Audit events that failed to persist",
			},
			[]string{"sink"},
		),
		NotificationsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campus_notifications_dropped_total",
				Help: "Notifications that could not be published",
			},
		),
		TokensCleanedUpTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campus_tokens_cleaned_up_total",
				Help: "Expired API tokens removed by the cleanup job",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.AuthzDecisionsTotal,
			m.TenantResolutionsTotal,
			m.WorkflowTransitionTotal,
			m.AuditWriteErrorsTotal,
			m.NotificationsDropped,
			m.TokensCleanedUpTotal,
		)
	}

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel prefers the mux route template so tenant slugs and IDs do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware records request counts and latency
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
