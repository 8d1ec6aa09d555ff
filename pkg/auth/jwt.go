package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the owner alongside the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Owner string `json:"owner,omitempty"`
}

// GenerateToken signs an HS256 token for owner valid for ttl.
func GenerateToken(owner string, secret []byte, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errors.New("owner is required")
	}
	if len(secret) == 0 {
		return "", errors.New("signing secret is required")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Owner: owner,
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// JWTResolver validates HS256 bearer tokens.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver returns a resolver verifying tokens signed with secret.
func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

// ResolveOwner returns the owner claim, or the subject when the owner claim
// is absent.
func (r *JWTResolver) ResolveOwner(_ context.Context, credential string) (string, error) {
	raw := BearerToken(credential)
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	owner := claims.Owner
	if owner == "" {
		owner = claims.Subject
	}
	if owner == "" {
		return "", fmt.Errorf("%w: token has no owner", ErrUnauthorized)
	}
	return owner, nil
}
