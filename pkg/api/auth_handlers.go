package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/httputil"
)

// AuthHandlers handles credential exchange
type AuthHandlers struct {
	auth *auth.Authenticator
}

// NewAuthHandlers creates a new AuthHandlers
func NewAuthHandlers(authenticator *auth.Authenticator) *AuthHandlers {
	return &AuthHandlers{auth: authenticator}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token. The token is only shown once.
type LoginResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Principal *auth.Principal `json:"principal"`
}

// Login exchanges an email and password for a bearer token
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	principal, token, plaintext, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteAccessError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, LoginResponse{
		Token:     plaintext,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAt,
		Principal: principal,
	})
}
