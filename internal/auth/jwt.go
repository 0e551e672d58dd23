// Package auth issues and checks the bearer tokens that API clients present
// to the sandbox.
//
// TOKEN FLOW:
//  1. An operator runs `sandbox token <client-id>` with the server's secret
//  2. The client sends it on every call: Authorization: Bearer <jwt>
//  3. RequireToken validates it and stores the client id in the request context
//
// Tokens are HS256 JWTs. The server verifies them with the shared secret alone;
// there is no token table to look up or revoke from. Rotate the secret to
// invalidate every outstanding token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "code-sandbox"

	// DefaultTTL is the lifetime of a token minted without an explicit one.
	DefaultTTL = 30 * 24 * time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: SANDBOX_SERVER_API_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: API secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// claims is the JWT payload. "sub" carries the client id.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for clientID that expires after ttl. A ttl <= 0
// means DefaultTTL.
func (s *TokenService) Generate(clientID string, ttl time.Duration) (string, error) {
	if clientID == "" {
		return "", errors.New("auth: client id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.sign(clientID, s.now().Add(ttl))
}

func (s *TokenService) sign(clientID string, expires time.Time) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns the client id.
//
// The algorithm is pinned to HS256 so a token claiming "none" (or an
// asymmetric algorithm keyed with our secret) is rejected before the
// signature is even looked at.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
