// Package auth provides the authenticated principal and its context helpers.
//
// Identity is owned by an external provider that issues signed tokens; this
// package verifies them and carries the resulting principal in the request
// context. It is imported by middleware, handler and service packages
// without causing import cycles.
package auth

import (
	"context"
	"net/http"
)

// Principal is the acting user as asserted by the auth provider.
type Principal struct {
	ID    string
	Email string
	Name  string
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// principalContextKey is the key used to store the principal in context.
	principalContextKey contextKey = "principal"
)

// GetPrincipal retrieves the authenticated principal from the context.
//
// Returns nil if the request is unauthenticated.
//
// Usage:
//
//	p := auth.GetPrincipal(r.Context())
//	if p == nil {
//	    // Handle unauthenticated request
//	}
func GetPrincipal(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// GetPrincipalFromRequest retrieves the principal from the request context.
func GetPrincipalFromRequest(r *http.Request) *Principal {
	return GetPrincipal(r.Context())
}

// SetPrincipal stores a principal in the context.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
