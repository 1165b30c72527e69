// Package auth is the identity-provider boundary. The account system signs
// HS256 tokens carrying a stable user id, a display name, and the user's
// global profile role; this package verifies them and nothing more.
// Credential handling lives entirely outside the core.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"huddle/api/internal/rbac"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Identity is what the rest of the system knows about the caller.
type Identity struct {
	ID   string
	Name string
	Role rbac.Role
}

type claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an identity token. Used by tests and by deployments that
// co-locate the identity signer with the API.
func IssueToken(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: identity.Name,
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

// VerifyToken parses and validates a bearer token, returning the caller's
// identity with the profile role normalized.
func VerifyToken(secret []byte, tokenString string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		ID:   c.Subject,
		Name: c.Name,
		Role: rbac.Normalize(c.Role),
	}, nil
}
