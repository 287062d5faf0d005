// Package auth provides authentication and authorization for prachand-server.
//
// # Tokens
//
// Every node and controller holds its own secret: the node key issued at
// enrollment, or the controller key created by an operator. Tokens are
// HS256 JWTs signed with that secret and carry two claims:
//
//   - access: the host identifier or controller identifier
//   - scope: "host" or "controller"
//
// Rotating a secret (re-enrollment does this) immediately invalidates every
// token signed with the old one. There is no expiry.
//
// # Principals
//
// A decoded token yields a Principal, either HostPrincipal or
// ControllerPrincipal. Each variant resolves its own credentials through a
// CredentialStore, so a new scope is added by adding a variant rather than
// by branching on strings.
//
// # HTTP Middleware
//
//	authn := NewAuthenticator(NewIssuer("prachand"), store, logger)
//	r.Use(authn.Middleware)
//	r.Handle("/list_nodes", authn.RequireScope(ScopeController)(h))
//
// Middleware requires a non-empty body, decodes the token without checking
// its signature, loads exactly one credential row for the named identity,
// refuses rows marked invalid, and only then verifies the signature.
//
// # Keys
//
// GenerateKey draws 32 characters from [0-9A-Za-z] using crypto/rand.
// GenerateUniqueKey retries against a caller-supplied uniqueness check and
// gives up with ErrKeySpaceExhausted.
package auth
