// Package auth provides user tokens for the feeds socket and REST API.
//
// Production tokens are minted by the application backend and passed in as a
// StaticToken. For development, DevTokenProvider signs HS256 tokens locally
// from the API secret, the way the backend does.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors
var (
	ErrMissingUserID = errors.New("user id is required")
	ErrMissingSecret = errors.New("api secret is required")
	ErrEmptyToken    = errors.New("token is empty")
)

// Provider supplies a token for each connection attempt.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued token.
type StaticToken string

// Token returns the token unchanged.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}

// Claims are the claims carried by a user token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// DevTokenProvider signs user tokens with the API secret.
type DevTokenProvider struct {
	UserID string
	Secret []byte
	TTL    time.Duration // zero for tokens that never expire

	now func() time.Time
}

// NewDevTokenProvider validates its inputs and returns a provider.
func NewDevTokenProvider(userID string, secret []byte, ttl time.Duration) (*DevTokenProvider, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &DevTokenProvider{UserID: userID, Secret: secret, TTL: ttl, now: time.Now}, nil
}

// Token signs a fresh token.
func (p *DevTokenProvider) Token(context.Context) (string, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	issued := now()

	claims := Claims{
		UserID: p.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
	if p.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issued.Add(p.TTL))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// LoadSecret reads an API secret from a file, trimming surrounding whitespace.
func LoadSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return []byte(secret), nil
}

// TokenExpired reports whether token's exp claim lies before now+leeway. The
// signature is not verified; the server remains the authority.
func TokenExpired(token string, now time.Time, leeway time.Duration) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return false, nil
	}
	return claims.ExpiresAt.Time.Before(now.Add(leeway)), nil
}

// UserIDFromToken returns the user_id claim of an unverified token.
func UserIDFromToken(token string) (string, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == "" {
		return "", ErrMissingUserID
	}
	return claims.UserID, nil
}
