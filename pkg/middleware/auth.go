package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/campus/pkg/auth"
	"github.com/platinummonkey/campus/pkg/httputil"
)

// TokenAuthenticator resolves a bearer token to the calling principal
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, bearer string) (*auth.AuthContext, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// principal on the request context
func Authenticate(authn TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			ac, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				httputil.WriteAccessError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuthContext(r.Context(), ac)))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthContext extracts the auth context from the request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ac, _ := auth.FromContext(r.Context())
	return ac
}
