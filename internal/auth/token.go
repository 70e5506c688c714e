package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the access token claims issued by the identity service.
type Claims struct {
	Role        string `json:"role"`
	KYCVerified bool   `json:"kyc_verified"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 access token and returns the principal it carries.
func ParseToken(token string, secret []byte) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{UserID: claims.Subject, Role: role, KYCVerified: claims.KYCVerified}, nil
}

// IssueToken signs an access token for p. Used by tooling and tests; production tokens
// come from the identity service sharing the same secret.
func IssueToken(p Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        p.Role,
		KYCVerified: p.KYCVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
