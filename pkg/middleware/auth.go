// Package middleware provides the HTTP middleware applied by the server:
// bearer token authentication and request ID propagation.
package middleware

import (
	"net/http"
	"strings"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
)

// AuthMiddleware authenticates requests carrying a bearer access token
type AuthMiddleware struct {
	tokens *auth.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler wraps an HTTP handler with authentication. Verified claims are
// stored on the request context; downstream handlers trust claims.UserID
// without re-querying the user store.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.tokens.VerifyAccessToken(parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = observability.WithUserID(ctx, claims.UserID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
