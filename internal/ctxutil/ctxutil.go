// Package ctxutil carries authenticated identity through request contexts.
//
// The server's auth middleware writes the claims and both the HTTP handlers
// and the MCP tools read them, so neither package imports the other for it.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/kenkyu/internal/auth"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// Owner returns the client ID of the authenticated caller, or "" when the
// request is unauthenticated.
func Owner(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.ClientID()
	}
	return ""
}

// CanAccess reports whether the caller in ctx may read or advance a session
// owned by owner. Sessions created without authentication are open to all.
func CanAccess(ctx context.Context, owner string) bool {
	return owner == "" || owner == Owner(ctx)
}
