package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/httputil"
	"github.com/platinummonkey/campus/pkg/rbac"
)

// AccountHandlers serves the caller's own account. The routes need a token
// but no tenant.
type AccountHandlers struct {
	auth  *auth.Authenticator
	roles *rbac.Registry
}

// NewAccountHandlers creates a new AccountHandlers
func NewAccountHandlers(authenticator *auth.Authenticator, roles *rbac.Registry) *AccountHandlers {
	return &AccountHandlers{auth: authenticator, roles: roles}
}

// RegisterRoutes registers account routes
func (h *AccountHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	router.HandleFunc("/me/password", h.ChangePassword).Methods(http.MethodPost)
	router.HandleFunc("/me/tokens", h.ListTokens).Methods(http.MethodGet)
	router.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
}

// ChangePasswordRequest is the body of POST /me/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserResponse is a principal with its live role assignments
type UserResponse struct {
	*auth.Principal
	RoleAssignments []*rbac.RoleAssignment `json:"role_assignments"`
}

// Me returns the caller's profile and every live role assignment
func (h *AccountHandlers) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteAccessError(w, r, auth.ErrInvalidToken)
		return
	}
	assignments, err := h.roles.ListAssignments(r.Context(), ac.Principal.ID)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []*rbac.RoleAssignment{}
	}
	httputil.WriteSuccess(w, UserResponse{Principal: ac.Principal, RoleAssignments: assignments})
}

// ChangePassword replaces the caller's password
func (h *AccountHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httputil.WriteBadRequest(w, "current_password and new_password are required")
		return
	}
	if err := h.auth.ChangePassword(r.Context(), principalOf(r), req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListTokens lists the caller's tokens, revoked ones included. Hashes are never returned.
func (h *AccountHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.auth.Tokens().ListPrincipalTokens(r.Context(), principalOf(r))
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

// Logout revokes the token of the request
func (h *AccountHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.auth.Logout(r.Context(), ac); err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
