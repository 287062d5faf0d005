// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithPrincipal/PrincipalFromContext for propagating the caller via context

package auth

import (
	"context"
)

// principalContextKey is the key type for storing a Principal in context.Context.
type principalContextKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the principal from the context, returning nil if not present.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok {
		return nil
	}
	return p
}

// MustPrincipalFromContext retrieves the principal from the context, panicking if not present.
func MustPrincipalFromContext(ctx context.Context) Principal {
	p := PrincipalFromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}
