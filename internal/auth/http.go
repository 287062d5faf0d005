// ABOUTME: HTTP middleware authenticating every protected request
// ABOUTME: Resolves the claimed principal, verifies its token, and gates handlers by scope

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/prachand/internal/protocol"
)

// MaxBodyBytes bounds the body of an authenticated request.
const MaxBodyBytes = 1 << 20

// Authenticator checks the Authorization header of protected requests
// against the current secret of the principal the token names.
type Authenticator struct {
	issuer *Issuer
	creds  CredentialStore
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(issuer *Issuer, creds CredentialStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		issuer: issuer,
		creds:  creds,
		logger: logger.With("component", "auth"),
	}
}

// extractToken accepts the raw token or one prefixed with "Bearer ".
// Returns the token and an error message (empty if successful).
func extractToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticate resolves and verifies the principal named by token.
func (a *Authenticator) Authenticate(r *http.Request, token string) (Principal, error) {
	p, err := a.issuer.Decode(token)
	if err != nil {
		return nil, err
	}

	rows, err := p.credentials(r.Context(), a.creds)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, errors.New("principal does not resolve to exactly one identity")
	}
	if rows[0].Invalid {
		return nil, errors.New("principal is marked invalid")
	}

	if err := a.issuer.Verify(token, p, rows[0].Secret); err != nil {
		return nil, err
	}
	return p, nil
}

// Middleware rejects requests without a non-empty body and a valid token,
// and attaches the verified principal to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil || len(bytes.TrimSpace(body)) == 0 {
			a.reject(w, r, http.StatusUnauthorized, "missing request body")
			return
		}

		token, errMsg := extractToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			a.reject(w, r, http.StatusUnauthorized, errMsg)
			return
		}

		p, err := a.Authenticate(r, token)
		if err != nil {
			a.reject(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireScope creates a middleware that admits only principals with one
// of the given scopes. Must be used after Middleware.
func (a *Authenticator) RequireScope(scopes ...Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				a.reject(w, r, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, s := range scopes {
				if p.Scope() == s {
					next.ServeHTTP(w, r)
					return
				}
			}
			a.logger.Debug("scope not permitted",
				"path", r.URL.Path,
				"identity", p.Identity(),
				"scope", p.Scope(),
			)
			writeMessage(w, http.StatusForbidden, protocol.MsgForbidden)
		})
	}
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	a.logger.Debug("authentication failed", "path", r.URL.Path, "reason", reason)
	writeMessage(w, status, protocol.MsgUnauthorized)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.MessageResponse{Message: msg})
}
