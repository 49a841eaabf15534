package tenants

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/contextkeys"
)

// Source names the hint a tenant was resolved from
type Source string

const (
	SourceHeader    Source = "header"
	SourceDomain    Source = "domain"
	SourceSubdomain Source = "subdomain"
	SourcePath      Source = "path"
)

// PathSlugVar is the mux route variable carrying a path-segment tenant slug
const PathSlugVar = "tenant_slug"

// Hints are the tenant resolution inputs extracted from a request
type Hints struct {
	// Header is the explicit tenant header value: an organization ID or slug
	Header string
	// Host is the request host, possibly with a port
	Host string
	// PathSlug is the tenant slug from the URL path
	PathSlug string
	// School optionally selects a school of the resolved organization
	School string
}

// HeaderNames configures the request headers read by HintsFromRequest
type HeaderNames struct {
	Tenant string
	School string
}

// HintsFromRequest collects resolution hints from an inbound request
func HintsFromRequest(r *http.Request, headers HeaderNames) Hints {
	return Hints{
		Header:   strings.TrimSpace(r.Header.Get(headers.Tenant)),
		Host:     r.Host,
		PathSlug: mux.Vars(r)[PathSlugVar],
		School:   strings.TrimSpace(r.Header.Get(headers.School)),
	}
}

// Context is the tenant scope of a single request
type Context struct {
	Organization *Organization
	School       *School
	ReadOnly     bool
	Source       Source
}

// OrganizationID returns the resolved organization ID
func (c *Context) OrganizationID() uuid.UUID {
	if c == nil || c.Organization == nil {
		return uuid.Nil
	}
	return c.Organization.ID
}

// SchoolID returns the resolved school ID, or nil when the request is organization-wide
func (c *Context) SchoolID() *uuid.UUID {
	if c == nil || c.School == nil {
		return nil
	}
	id := c.School.ID
	return &id
}

// WithContext stores the tenant context on ctx
func WithContext(ctx context.Context, tc *Context) context.Context {
	return contextkeys.WithTenant(ctx, tc)
}

// FromContext returns the tenant context stored on ctx
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextkeys.TenantKey).(*Context)
	return tc, ok && tc != nil
}

// ResolverConfig configures tenant resolution
type ResolverConfig struct {
	// BaseDomain is the platform domain whose subdomains are tenant slugs
	BaseDomain string
	// AllowExpiredReadOnly grants read-only access to expired subscriptions
	AllowExpiredReadOnly bool
}

// ResolveObserver is notified of every resolution outcome
type ResolveObserver func(source Source, result string)

// Resolver maps resolution hints to exactly one organization and optionally one school
type Resolver struct {
	dir      Directory
	cfg      ResolverConfig
	observer ResolveObserver
}

// NewResolver creates a resolver over dir
func NewResolver(dir Directory, cfg ResolverConfig) *Resolver {
	cfg.BaseDomain = normalizeHost(cfg.BaseDomain)
	return &Resolver{dir: dir, cfg: cfg}
}

// WithObserver sets a callback for resolution metrics
func (r *Resolver) WithObserver(fn ResolveObserver) *Resolver {
	r.observer = fn
	return r
}

type candidate struct {
	source Source
	lookup func(ctx context.Context) (*Organization, error)
}

// candidates lists the applicable hints in priority order: header, custom domain, subdomain, path
func (r *Resolver) candidates(h Hints) []candidate {
	var out []candidate

	if h.Header != "" {
		value := h.Header
		out = append(out, candidate{SourceHeader, func(ctx context.Context) (*Organization, error) {
			if id, err := uuid.Parse(value); err == nil {
				return r.dir.GetOrganization(ctx, id)
			}
			return r.dir.GetOrganizationBySlug(ctx, value)
		}})
	}

	host := normalizeHost(h.Host)
	if host != "" && host != r.cfg.BaseDomain {
		out = append(out, candidate{SourceDomain, func(ctx context.Context) (*Organization, error) {
			return r.dir.GetOrganizationByDomain(ctx, host)
		}})
	}

	if slug := r.subdomainSlug(host); slug != "" {
		out = append(out, candidate{SourceSubdomain, func(ctx context.Context) (*Organization, error) {
			return r.dir.GetOrganizationBySlug(ctx, slug)
		}})
	}

	if h.PathSlug != "" {
		slug := h.PathSlug
		out = append(out, candidate{SourcePath, func(ctx context.Context) (*Organization, error) {
			return r.dir.GetOrganizationBySlug(ctx, slug)
		}})
	}

	return out
}

// subdomainSlug extracts "<slug>" from "<slug>.<base domain>"; nested labels do not match
func (r *Resolver) subdomainSlug(host string) string {
	if r.cfg.BaseDomain == "" || !strings.HasSuffix(host, "."+r.cfg.BaseDomain) {
		return ""
	}
	label := strings.TrimSuffix(host, "."+r.cfg.BaseDomain)
	if label == "" || label == "www" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// Resolve tries each hint in priority order; the first hint naming an active organization wins.
// A suspended organization fails with ErrTenantInactive, as does an expired one unless
// read-only access is enabled.
func (r *Resolver) Resolve(ctx context.Context, hints Hints) (*Context, error) {
	for _, c := range r.candidates(hints) {
		org, err := c.lookup(ctx)
		if errors.Is(err, ErrOrganizationNotFound) {
			continue
		}
		if err != nil {
			r.observe(c.source, "error")
			return nil, fmt.Errorf("resolve tenant from %s: %w", c.source, err)
		}
		if !org.IsActive {
			continue
		}

		readOnly, err := org.SubscriptionStatus.Access(r.cfg.AllowExpiredReadOnly)
		if err != nil {
			r.observe(c.source, "inactive")
			return nil, err
		}

		school, err := r.selectSchool(ctx, org, hints.School)
		if err != nil {
			r.observe(c.source, "not_found")
			return nil, err
		}

		r.observe(c.source, "ok")
		return &Context{Organization: org, School: school, ReadOnly: readOnly, Source: c.source}, nil
	}

	r.observe("none", "not_found")
	return nil, ErrTenantNotFound
}

// selectSchool picks the requested school, or the organization's only school.
// A school hint that does not belong to org is reported as tenant not found.
func (r *Resolver) selectSchool(ctx context.Context, org *Organization, hint string) (*School, error) {
	if hint != "" {
		id, err := uuid.Parse(hint)
		if err != nil {
			return nil, ErrTenantNotFound
		}
		school, err := r.dir.GetSchool(ctx, id)
		if errors.Is(err, ErrSchoolNotFound) {
			return nil, ErrTenantNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve school: %w", err)
		}
		if school.OrganizationID != org.ID {
			return nil, ErrTenantNotFound
		}
		return school, nil
	}

	schools, err := r.dir.ListSchools(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve school: %w", err)
	}
	if len(schools) == 1 {
		return schools[0], nil
	}
	return nil, nil
}

func (r *Resolver) observe(source Source, result string) {
	if r.observer != nil {
		r.observer(source, result)
	}
}
