package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed, expired, and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenVerifierDisabled is returned when no JWT secret is configured.
	ErrTokenVerifierDisabled = errors.New("token verification disabled")
)

// IdentityClaims are the claims issued by the identity service.
type IdentityClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 identity tokens.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewTokenVerifier returns a verifier for secret. An empty secret yields a
// verifier that rejects every token.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), leeway: 30 * time.Second}
}

// Enabled reports whether a secret is configured.
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses token and returns its claims.
func (v *TokenVerifier) Verify(token string) (*IdentityClaims, error) {
	if !v.Enabled() {
		return nil, ErrTokenVerifierDisabled
	}

	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}

// Sign issues a token for userID. The identity service owns issuance in
// production; this exists for the CLI and tests.
func (v *TokenVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", ErrTokenVerifierDisabled
	}
	now := time.Now()
	claims := IdentityClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
