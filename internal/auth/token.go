// Package auth verifies agent bearer tokens for the staff-facing ticket
// endpoints. Customer identity is handled separately by the external
// identity provider; this package only covers support agents.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AgentClaims carries the agent identifier inside a signed token.
type AgentClaims struct {
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies agent tokens with a shared secret.
type TokenManager struct {
	secret []byte
}

// NewTokenManager constructs a manager from the configured secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Issue mints a token for an agent. Tokens are minted out of band by
// operators; there is no login endpoint.
func (m *TokenManager) Issue(agentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AgentClaims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token, rejecting unexpected signing
// methods.
func (m *TokenManager) Verify(tokenString string) (*AgentClaims, error) {
	claims := &AgentClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.AgentID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
