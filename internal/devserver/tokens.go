package devserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

const tokenIssuer = "figrclub-devserver"

type accessTokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// issueAccessToken mints an HS256 JWT for the account. The dev server signs
// with a shared secret; the real platform uses asymmetric keys, which the
// client never needs to know about.
func issueAccessToken(secret []byte, accountID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now().UTC()
	claims := accessTokenClaims{
		UserID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// parseAccessToken validates the JWT and returns the account ID it was issued to.
func parseAccessToken(secret []byte, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("access token is required")
	}

	claims := &accessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", err
	}
	if parsed == nil || !parsed.Valid || claims.UserID == "" {
		return "", fmt.Errorf("invalid access token")
	}

	return claims.UserID, nil
}
