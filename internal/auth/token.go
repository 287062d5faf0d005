// ABOUTME: Token issuance and verification keyed by each identity's own secret
// ABOUTME: HS256 JWTs carrying access and scope claims, verified against the current secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
	ErrUnknownScope = errors.New("unknown scope")
	ErrEmptySecret  = errors.New("empty signing secret")
)

// Claims is the payload of every prachand token.
type Claims struct {
	Access string `json:"access,omitempty"`
	Scope  Scope  `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies tokens. It holds no key material: every token
// is signed with the secret of the identity it names.
type Issuer struct {
	name string
	now  func() time.Time
}

// NewIssuer creates an issuer that stamps and requires the given iss claim.
func NewIssuer(name string) *Issuer {
	return &Issuer{name: name, now: time.Now}
}

// Name returns the iss claim this issuer stamps.
func (i *Issuer) Name() string {
	return i.name
}

// Issue signs a token for p with its current secret.
func (i *Issuer) Issue(p Principal, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	claims := Claims{
		Access: p.Identity(),
		Scope:  p.Scope(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.name,
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode reads the principal a token claims to be without checking its
// signature. The result only says whose secret to verify against.
func (i *Issuer) Decode(tokenString string) (Principal, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return principalFromClaims(&claims)
}

// Verify checks the token's signature against secret and that its issuer,
// access and scope claims name p.
func (i *Issuer) Verify(tokenString string, p Principal, secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.name),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	if claims.Access != p.Identity() {
		return fmt.Errorf("%w: access claim does not match", ErrInvalidToken)
	}
	if claims.Scope != p.Scope() {
		return fmt.Errorf("%w: scope claim does not match", ErrInvalidToken)
	}
	return nil
}
