// ABOUTME: Principals a token can name, one variant per scope
// ABOUTME: Each variant knows how to resolve its own current secret

package auth

import (
	"context"
	"fmt"

	"github.com/2389/prachand/internal/store"
)

// Scope distinguishes node tokens from operator tokens.
type Scope string

// Scopes
const (
	ScopeHost       Scope = "host"
	ScopeController Scope = "controller"
)

// CredentialStore resolves the current secrets behind an identity. It
// returns every matching row so callers can insist on exactly one.
type CredentialStore interface {
	NodeCredentials(ctx context.Context, hostIdentifier string) ([]store.Credential, error)
	ControllerCredentials(ctx context.Context, identifier string) ([]store.Credential, error)
}

// Principal is an authenticated identity. The set of implementations is
// closed: HostPrincipal and ControllerPrincipal.
type Principal interface {
	Identity() string
	Scope() Scope
	credentials(ctx context.Context, creds CredentialStore) ([]store.Credential, error)
}

// HostPrincipal is an enrolled node, identified by its host identifier and
// verified with its node key.
type HostPrincipal struct {
	HostIdentifier string
}

// Identity returns the host identifier.
func (p HostPrincipal) Identity() string { return p.HostIdentifier }

// Scope returns ScopeHost.
func (p HostPrincipal) Scope() Scope { return ScopeHost }

func (p HostPrincipal) credentials(ctx context.Context, creds CredentialStore) ([]store.Credential, error) {
	return creds.NodeCredentials(ctx, p.HostIdentifier)
}

// ControllerPrincipal is an operator, verified with its controller key.
type ControllerPrincipal struct {
	ControllerIdentifier string
}

// Identity returns the controller identifier.
func (p ControllerPrincipal) Identity() string { return p.ControllerIdentifier }

// Scope returns ScopeController.
func (p ControllerPrincipal) Scope() Scope { return ScopeController }

func (p ControllerPrincipal) credentials(ctx context.Context, creds CredentialStore) ([]store.Credential, error) {
	return creds.ControllerCredentials(ctx, p.ControllerIdentifier)
}

// principalFromClaims is the only place the scope string is inspected.
func principalFromClaims(c *Claims) (Principal, error) {
	if c.Access == "" {
		return nil, fmt.Errorf("%w: access", ErrMissingClaim)
	}

	switch c.Scope {
	case "":
		return nil, fmt.Errorf("%w: scope", ErrMissingClaim)
	case ScopeHost:
		return HostPrincipal{HostIdentifier: c.Access}, nil
	case ScopeController:
		return ControllerPrincipal{ControllerIdentifier: c.Access}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, c.Scope)
	}
}
