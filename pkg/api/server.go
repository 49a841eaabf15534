package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/middleware"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
	"github.com/platinummonkey/campus/pkg/workflow"
)

// Tenant routes are served under both prefixes; the second carries the
// tenant slug in the path.
const (
	apiPrefix         = "/api/v1"
	tenantPathPrefix  = "/t/{" + tenants.PathSlugVar + "}/api/v1"
	platformPrefix    = "/platform/v1"
	loginLimiterScope = "login"
)

// Config holds the request pipeline settings
type Config struct {
	Headers          tenants.HeaderNames
	ActiveRoleHeader string
	TrustProxy       bool
	CORSOrigins      []string
}

// Services are the collaborators behind the handlers. LoginLimiter and
// Metrics may be nil.
type Services struct {
	Directory    tenants.Directory
	Resolver     middleware.TenantResolver
	Auth         *auth.Authenticator
	Roles        *rbac.Registry
	Authz        *authz.DecisionPoint
	Workflows    *workflow.Service
	Orgs         *orgs.Service
	AuditStore   audit.Store
	Audit        audit.Logger
	LoginLimiter middleware.Limiter
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// Server is the HTTP API
type Server struct {
	router *mux.Router
	cfg    Config
	svc    Services
}

// NewServer creates the API server and registers every route
func NewServer(cfg Config, svc Services) *Server {
	if svc.Audit == nil {
		svc.Audit = audit.NoOp()
	}
	if svc.Logger == nil {
		svc.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{router: mux.NewRouter(), cfg: cfg, svc: svc}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in tracing and CORS handling
func (s *Server) Handler() http.Handler {
	wrap := []func(http.Handler) http.Handler{
		func(h http.Handler) http.Handler { return otelhttp.NewHandler(h, "campus.api") },
	}
	if len(s.cfg.CORSOrigins) > 0 {
		wrap = append(wrap, httputil.CORSMiddleware(s.cfg.CORSOrigins,
			s.cfg.Headers.Tenant, s.cfg.Headers.School, s.cfg.ActiveRoleHeader))
	}
	return httputil.Chain(wrap...)(s.router)
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recovery, middleware.RequestID, middleware.Logging(s.svc.Logger),
		audit.Middleware(s.svc.Audit, s.cfg.TrustProxy), httputil.ContentTypeMiddleware)
	if s.svc.Metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(s.svc.Metrics))
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})

	authHandlers := NewAuthHandlers(s.svc.Auth)
	login := http.Handler(http.HandlerFunc(authHandlers.Login))
	if s.svc.LoginLimiter != nil {
		login = middleware.RateLimit(s.svc.LoginLimiter, loginLimiterScope, s.cfg.TrustProxy)(login)
	}
	account := NewAccountHandlers(s.svc.Auth, s.svc.Roles)

	tenantHandlers := []interface{ RegisterRoutes(*mux.Router) }{
		NewAccessHandlers(s.svc.Authz),
		NewSchoolHandlers(s.svc.Directory, s.svc.Authz),
		NewRoleHandlers(s.svc.Roles, s.svc.Authz),
		NewUserHandlers(s.svc.Auth, s.svc.Roles, s.svc.Authz),
		NewWorkflowHandlers(s.svc.Workflows),
		NewAuditHandlers(s.svc.AuditStore, s.svc.Authz),
	}

	for _, prefix := range []string{apiPrefix, tenantPathPrefix} {
		// login needs neither a tenant nor a token
		public := r.PathPrefix(prefix + "/auth").Subrouter()
		public.Handle("/login", login).Methods(http.MethodPost)

		// account routes need a token but no tenant
		session := r.PathPrefix(prefix).Subrouter()
		session.Use(middleware.Authenticate(s.svc.Auth))
		account.RegisterRoutes(session)

		// the token is checked before the tenant is looked up, so anonymous
		// callers get the same 401 whether or not the tenant exists
		tenant := r.PathPrefix(prefix).Subrouter()
		tenant.Use(
			middleware.Authenticate(s.svc.Auth),
			middleware.ResolveTenant(s.svc.Resolver, s.cfg.Headers),
			middleware.ResolveRole(s.svc.Roles, s.cfg.ActiveRoleHeader),
		)
		for _, h := range tenantHandlers {
			h.RegisterRoutes(tenant)
		}
	}

	platform := r.PathPrefix(platformPrefix).Subrouter()
	platform.Use(
		middleware.Authenticate(s.svc.Auth),
		middleware.ResolveRole(s.svc.Roles, s.cfg.ActiveRoleHeader),
	)
	NewPlatformHandlers(s.svc.Orgs, s.svc.Directory, s.svc.Authz).RegisterRoutes(platform)
}
