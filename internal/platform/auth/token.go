package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Claims are the claims of a session token. The application role is not
// part of the token; it is always read from the document store.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Anonymous     bool   `json:"anonymous,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// Subject is the set of identity fields stored in a session token.
type Subject struct {
	UID           string
	Email         string
	Name          string
	Anonymous     bool
	EmailVerified bool
	Provider      string
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	revoked *TokenRevocationStore
	now     func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. revoked may be nil.
func NewTokenIssuer(key []byte, issuer string, ttl time.Duration, revoked *TokenRevocationStore) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{key: key, issuer: issuer, ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue returns a signed token for sub and its expiry.
func (t *TokenIssuer) Issue(sub Subject) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   sub.UID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:         sub.Email,
		Name:          sub.Name,
		Anonymous:     sub.Anonymous,
		EmailVerified: sub.EmailVerified,
		Provider:      sub.Provider,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a token.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if t.revoked != nil && t.revoked.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke invalidates a previously issued token until it expires.
func (t *TokenIssuer) Revoke(claims *Claims) {
	if t.revoked == nil || claims == nil || claims.ID == "" {
		return
	}
	exp := t.now().Add(t.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	t.revoked.RevokeForUser(claims.ID, claims.Subject, exp)
}

// SubjectFromClaims converts verified claims back to a Subject.
func SubjectFromClaims(c *Claims) Subject {
	return Subject{
		UID:           c.Subject,
		Email:         c.Email,
		Name:          c.Name,
		Anonymous:     c.Anonymous,
		EmailVerified: c.EmailVerified,
		Provider:      c.Provider,
	}
}
