// ABOUTME: Unit tests for token issuance, decoding, and verification
// ABOUTME: Covers claim round trips, wrong secrets, foreign issuers, and algorithm confusion

package auth

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewIssuer("prachand")

	tests := []struct {
		name      string
		principal Principal
	}{
		{"host", HostPrincipal{HostIdentifier: "abc"}},
		{"controller", ControllerPrincipal{ControllerIdentifier: "ops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := issuer.Issue(tt.principal, testSecret)
			require.NoError(t, err)

			decoded, err := issuer.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, tt.principal, decoded)

			assert.NoError(t, issuer.Verify(token, decoded, testSecret))
		})
	}
}

func TestIssuer_ClaimsOnTheWire(t *testing.T) {
	issuer := NewIssuer("prachand")
	token, err := issuer.Issue(HostPrincipal{HostIdentifier: "abc"}, testSecret)
	require.NoError(t, err)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, "abc", claims.Access)
	assert.Equal(t, ScopeHost, claims.Scope)
	assert.Equal(t, "prachand", claims.Issuer)
}

func TestIssuer_VerifyRejects(t *testing.T) {
	issuer := NewIssuer("prachand")
	host := HostPrincipal{HostIdentifier: "abc"}

	valid, err := issuer.Issue(host, testSecret)
	require.NoError(t, err)

	foreign, err := NewIssuer("someone-else").Issue(host, testSecret)
	require.NoError(t, err)

	otherHost, err := issuer.Issue(HostPrincipal{HostIdentifier: "xyz"}, testSecret)
	require.NoError(t, err)

	asController, err := issuer.Issue(ControllerPrincipal{ControllerIdentifier: "abc"}, testSecret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Access:           "abc",
		Scope:            ScopeHost,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "prachand"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Access:           "abc",
		Scope:            ScopeHost,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "prachand"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "a-different-secret"},
		{"foreign issuer", foreign, testSecret},
		{"other identity", otherHost, testSecret},
		{"other scope", asController, testSecret},
		{"hs512", hs512, testSecret},
		{"alg none", unsigned, testSecret},
		{"garbage", "not-a-jwt-token", testSecret},
		{"tampered", valid + "x", testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := issuer.Verify(tt.token, host, tt.secret)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssuer_EmptySecret(t *testing.T) {
	issuer := NewIssuer("prachand")
	host := HostPrincipal{HostIdentifier: "abc"}

	_, err := issuer.Issue(host, "")
	assert.ErrorIs(t, err, ErrEmptySecret)

	token, err := issuer.Issue(host, testSecret)
	require.NoError(t, err)
	assert.ErrorIs(t, issuer.Verify(token, host, ""), ErrEmptySecret)
}

func TestIssuer_DecodeRequiresClaims(t *testing.T) {
	issuer := NewIssuer("prachand")

	sign := func(c Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"no access", sign(Claims{Scope: ScopeHost}), ErrMissingClaim},
		{"no scope", sign(Claims{Access: "abc"}), ErrMissingClaim},
		{"unknown scope", sign(Claims{Access: "abc", Scope: "admin"}), ErrUnknownScope},
		{"not a jwt", "header.payload", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Decode(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
