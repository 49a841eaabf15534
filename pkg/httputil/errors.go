package httputil

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/campus/pkg/audit"
	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/authz"
	"github.com/platinummonkey/campus/pkg/observability"
	"github.com/platinummonkey/campus/pkg/orgs"
	"github.com/platinummonkey/campus/pkg/rbac"
	"github.com/platinummonkey/campus/pkg/tenants"
	"github.com/platinummonkey/campus/pkg/workflow"
)

const (
	msgAccessUnavailable = "access unavailable"
	msgForbidden         = "forbidden"
	msgUnauthorized      = "unauthorized"
	msgNotFound          = "not found"
)

// ErrBadRequest marks malformed query parameters
var ErrBadRequest = errors.New("bad request")

// WriteAccessError maps a domain error to its response. Tenant errors are
// indistinguishable from each other and denials never reveal their reason.
func WriteAccessError(w http.ResponseWriter, r *http.Request, err error) {
	var te *workflow.TransitionError
	switch {
	case errors.Is(err, tenants.ErrTenantNotFound), errors.Is(err, tenants.ErrTenantInactive):
		WriteNotFound(w, msgAccessUnavailable)
	case authz.IsForbidden(err), errors.Is(err, rbac.ErrNoRoleInScope):
		WriteErrorMessage(w, http.StatusForbidden, msgForbidden)
	case errors.As(err, &te):
		WriteDetailedError(w, http.StatusUnprocessableEntity, "invalid state transition", map[string]string{
			"current_state":   te.From,
			"requested_state": te.To,
		})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrPrincipalInactive):
		WriteUnauthorized(w, msgUnauthorized)
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, tenants.ErrSchoolNotFound),
		errors.Is(err, tenants.ErrOrganizationNotFound), errors.Is(err, rbac.ErrRoleNotFound),
		errors.Is(err, rbac.ErrAssignmentNotFound), errors.Is(err, audit.ErrEventNotFound),
		errors.Is(err, auth.ErrPrincipalNotFound):
		WriteNotFound(w, msgNotFound)
	case errors.Is(err, tenants.ErrSlugTaken), errors.Is(err, tenants.ErrDomainTaken),
		errors.Is(err, auth.ErrEmailTaken):
		WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrInvalidRecord), errors.Is(err, tenants.ErrInvalidSlug),
		errors.Is(err, rbac.ErrInvalidRole), errors.Is(err, rbac.ErrInvalidAssignment),
		errors.Is(err, rbac.ErrSystemRoleImmutable), errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, orgs.ErrInvalidRequest), errors.Is(err, ErrBadRequest):
		WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		WriteInternalError(w)
	}
}
