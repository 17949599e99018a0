package token

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/ahananupam33/acquisitions/internal/domain"
)

var (
	// ErrExpired indicates a well-formed token whose lifetime has elapsed.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid indicates a malformed, forged, or otherwise unusable token.
	ErrInvalid = errors.New("token: invalid")
)

// Claims defines the session token payload.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwtlib.RegisteredClaims
}

// Issuer signs and verifies session tokens with a process-wide HS256 secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. The secret is loaded once at startup and
// never rotated mid-process.
func NewIssuer(secret string, ttl time.Duration) Issuer {
	return Issuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (i Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue produces a signed token for the user with an absolute expiry.
func (i Issuer) Issue(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "acquisitions",
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Parse validates signature integrity and expiry, in that order, and returns
// the embedded claims. Forged or malformed tokens yield ErrInvalid; a genuine
// token past its lifetime yields ErrExpired.
func (i Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return i.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
