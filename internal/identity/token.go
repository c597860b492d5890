// internal/identity/token.go
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voluntaris/internal/clock"
)

// Tokens issues and verifies the signed JWTs the HTTP layer uses to
// authenticate callers. The core services never see a token; they receive
// the resolved user id and role.
type Tokens struct {
	secret     []byte
	expiration time.Duration
	clk        clock.Clock
}

// NewTokens creates a token issuer with an HMAC secret.
func NewTokens(secret string, expiration time.Duration, clk clock.Clock) *Tokens {
	return &Tokens{secret: []byte(secret), expiration: expiration, clk: clk}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the given user.
func (t *Tokens) Issue(user *User) (string, error) {
	now := t.clk.Now()
	c := claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the caller's user id and role.
func (t *Tokens) Verify(tokenString string) (uuid.UUID, string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.clk.Now))
	if err != nil || !token.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return userID, c.Role, nil
}
