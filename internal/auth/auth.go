// Package auth mints and verifies the HS256 bearer tokens issued by the
// account service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Role is the caller category carried in the token's "type" claim.
type Role string

const (
	RoleUser      Role = "user"
	RoleAuthority Role = "authority"
	// RoleService is held by internal callers such as the crawler and operators.
	RoleService Role = "service"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAuthority, RoleService:
		return true
	default:
		return false
	}
}

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims.
type Claims struct {
	Type Role `json:"type"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret []byte
	clock  clockwork.Clock
}

// NewIssuer creates an Issuer. The secret must be non-empty.
func NewIssuer(secret string, clock clockwork.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Issuer{secret: []byte(secret), clock: clock}, nil
}

// Mint creates a signed token for subject with the given role and lifetime.
func (i *Issuer) Mint(subject string, role Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := i.clock.Now()
	claims := Claims{
		Type: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses a token and returns its principal.
func (i *Issuer) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Type.Valid() {
		return Principal{}, fmt.Errorf("%w: missing subject or type", ErrInvalidToken)
	}
	return Principal{ID: claims.Subject, Role: claims.Type}, nil
}
