package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhive/internal/clock"
)

// TokenKind marks whether a token grants access or only refresh rights.
// The two are never interchangeable: a refresh token presented where an
// access token is expected is rejected, and vice versa.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// Claims carried by every issued token
type Claims struct {
	jwt.RegisteredClaims
	UserID int64     `json:"uid"`
	Email  string    `json:"email,omitempty"`
	Roles  []string  `json:"roles,omitempty"`
	Kind   TokenKind `json:"kind"`
}

// TokenManager issues and validates signed bearer tokens. It holds no
// per-token state; validity is entirely derived from the signature and
// the embedded expiry.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

// NewTokenManager creates a token manager signing with the given
// shared secret
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, clk clock.Clock) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
	}
}

// TTL returns the configured lifetime for the given token kind
func (m *TokenManager) TTL(kind TokenKind) time.Duration {
	if kind == TokenRefresh {
		return m.refreshTTL
	}
	return m.accessTTL
}

// Issue signs a token for the subject with the given claims and kind
func (m *TokenManager) Issue(subject string, userID int64, email string, roles []string, kind TokenKind) (string, error) {
	now := m.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(kind))),
		},
		UserID: userID,
		Email:  email,
		Roles:  roles,
		Kind:   kind,
	})

	return token.SignedString(m.secret)
}

// Validate verifies the signature, expiry, and kind of a token string.
// The signature is checked before any claim is trusted.
func (m *TokenManager) Validate(tokenString string, want TokenKind) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Kind != want {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}
