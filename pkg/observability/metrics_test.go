package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	metrics.AuthzDecisionsTotal.WithLabelValues("deny", "outside_scope", "parent").Inc()
	metrics.TenantResolutionsTotal.WithLabelValues("header", "ok").Inc()

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "campus_authz_decisions_total")
	assert.Contains(t, names, "campus_tenant_resolutions_total")
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() { NewMetrics(nil) })
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/schools/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schools/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/schools/{id}", "418"))
	assert.Equal(t, float64(2), count)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.NotificationsDropped.Inc()

	m := http.NewServeMux()
	RegisterMetricsEndpoint(m, registry)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "campus_notifications_dropped_total 1"))
}
