package api

import (
	"context"

	"github.com/terra-clan/challenge-tracker/internal/auth"
)

type contextKey string

const claimsContextKey contextKey = "session_claims"

// ClaimsFromContext returns the session claims, or nil for anonymous requests
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// ContextWithClaims adds session claims to context
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
