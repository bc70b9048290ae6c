package auth

import (
	"context"

	"github.com/custodialabs/custodia/pkg/contextkeys"
)

// ContextWithClaims stores verified claims on the request context
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextkeys.ClaimsKey, claims)
}

// ClaimsFromContext returns the verified claims set by the auth middleware,
// or nil when the request is unauthenticated
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextkeys.ClaimsKey).(*Claims)
	return claims
}
