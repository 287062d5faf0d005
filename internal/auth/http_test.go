// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, credential resolution, invalid nodes, and scope gates

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/prachand/internal/protocol"
	"github.com/2389/prachand/internal/store"
)

// fakeCredentials is an in-memory CredentialStore.
type fakeCredentials struct {
	nodes       map[string][]store.Credential
	controllers map[string][]store.Credential
	err         error
}

func (f *fakeCredentials) NodeCredentials(ctx context.Context, id string) ([]store.Credential, error) {
	return f.nodes[id], f.err
}

func (f *fakeCredentials) ControllerCredentials(ctx context.Context, id string) ([]store.Credential, error) {
	return f.controllers[id], f.err
}

const (
	nodeKey       = "nodekeynodekeynodekeynodekey0000"
	controllerKey = "ctrlkeyctrlkeyctrlkeyctrlkey0000"
)

func newTestAuthenticator() (*Authenticator, *fakeCredentials) {
	creds := &fakeCredentials{
		nodes: map[string][]store.Credential{
			"abc": {{Identity: "abc", Secret: nodeKey}},
		},
		controllers: map[string][]store.Credential{
			"ops": {{Identity: "ops", Secret: controllerKey}},
		},
	}
	return NewAuthenticator(NewIssuer("prachand"), creds, nil), creds
}

func mustIssue(t *testing.T, p Principal, secret string) string {
	t.Helper()
	token, err := NewIssuer("prachand").Issue(p, secret)
	require.NoError(t, err)
	return token
}

// echoHandler records the principal and echoes the body it was handed.
func echoHandler(got *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = PrincipalFromContext(r.Context())
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func TestMiddleware_ValidTokens(t *testing.T) {
	authn, _ := newTestAuthenticator()

	tests := []struct {
		name   string
		header string
		want   Principal
	}{
		{"raw host token", mustIssue(t, HostPrincipal{"abc"}, nodeKey), HostPrincipal{"abc"}},
		{"bearer host token", "Bearer " + mustIssue(t, HostPrincipal{"abc"}, nodeKey), HostPrincipal{"abc"}},
		{"controller token", mustIssue(t, ControllerPrincipal{"ops"}, controllerKey), ControllerPrincipal{"ops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Principal
			req := httptest.NewRequest(http.MethodPost, "/get_command", strings.NewReader(`{"host_identifier":"abc"}`))
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			authn.Middleware(echoHandler(&got)).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, `{"host_identifier":"abc"}`, rec.Body.String(), "body should be restored for the handler")
		})
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	authn, creds := newTestAuthenticator()
	creds.nodes["dup"] = []store.Credential{
		{Identity: "dup", Secret: nodeKey},
		{Identity: "dup", Secret: nodeKey},
	}
	creds.nodes["invalid"] = []store.Credential{{Identity: "invalid", Secret: nodeKey, Invalid: true}}

	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"missing header", "", `{"x":1}`},
		{"empty bearer", "Bearer ", `{"x":1}`},
		{"garbage token", "not-a-jwt", `{"x":1}`},
		{"empty body", mustIssue(t, HostPrincipal{"abc"}, nodeKey), ""},
		{"whitespace body", mustIssue(t, HostPrincipal{"abc"}, nodeKey), "  \n"},
		{"unknown node", mustIssue(t, HostPrincipal{"nobody"}, nodeKey), `{"x":1}`},
		{"duplicate rows", mustIssue(t, HostPrincipal{"dup"}, nodeKey), `{"x":1}`},
		{"invalid node", mustIssue(t, HostPrincipal{"invalid"}, nodeKey), `{"x":1}`},
		{"stale key", mustIssue(t, HostPrincipal{"abc"}, "an-old-rotated-away-node-key-000"), `{"x":1}`},
		{"host token for controller", mustIssue(t, ControllerPrincipal{"abc"}, nodeKey), `{"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodPost, "/get_command", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			authn.Middleware(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called, "handler must not run")

			var body protocol.MessageResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, protocol.MsgUnauthorized, body.Message)
		})
	}
}

func TestMiddleware_StoreError(t *testing.T) {
	authn, creds := newTestAuthenticator()
	creds.err = errors.New("pool closed")

	req := httptest.NewRequest(http.MethodPost, "/get_command", strings.NewReader(`{}`))
	req.Header.Set("Authorization", mustIssue(t, HostPrincipal{"abc"}, nodeKey))
	rec := httptest.NewRecorder()

	authn.Middleware(http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	authn, _ := newTestAuthenticator()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name      string
		principal Principal
		scopes    []Scope
		want      int
	}{
		{"host allowed", HostPrincipal{"abc"}, []Scope{ScopeHost}, http.StatusOK},
		{"controller allowed", ControllerPrincipal{"ops"}, []Scope{ScopeController}, http.StatusOK},
		{"either allowed", HostPrincipal{"abc"}, []Scope{ScopeHost, ScopeController}, http.StatusOK},
		{"host forbidden", HostPrincipal{"abc"}, []Scope{ScopeController}, http.StatusForbidden},
		{"controller forbidden", ControllerPrincipal{"ops"}, []Scope{ScopeHost}, http.StatusForbidden},
		{"unauthenticated", nil, []Scope{ScopeHost}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/set_command", strings.NewReader(`{}`))
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()

			authn.RequireScope(tt.scopes...)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
