package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims carries the authenticated user ID inside a session token.
type SessionClaims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Session token parse failures distinguished by the resolver.
var (
	// ErrTokenExpired indicates the session token is past its expiry.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid indicates the token failed signature or format checks.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// IssueSessionToken signs a session token for the user ID.
func IssueSessionToken(secret string, userID uint64, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth: empty jwt secret")
	}
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("auth: sign session token: %w", errSign)
	}
	return signed, nil
}

// ParseSessionToken verifies a session token and returns its claims.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
