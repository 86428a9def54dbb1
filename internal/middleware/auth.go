// Package middleware provides HTTP middleware and request-scoped helpers:
// logging, tracing, metrics, rate limiting and bearer-token handling.
package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenIssuer   = "tribune-api"
	TokenAudience = "tribune-client"
	TokenTTL      = 7 * 24 * time.Hour
)

// ErrInvalidToken covers every reason a bearer token is rejected.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the validated subset of a session token.
type Claims struct {
	UserID    uint
	Username  string
	JTI       string
	ExpiresAt time.Time
}

// IssueToken signs an HS256 session token for the user.
func IssueToken(secret string, userID uint, username string, now time.Time) (string, *Claims, error) {
	if secret == "" {
		return "", nil, errors.New("JWT secret not configured")
	}

	claims := &Claims{
		UserID:    userID,
		Username:  username,
		JTI:       uuid.NewString(),
		ExpiresAt: now.Add(TokenTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(userID), 10),
		"username": username,
		"iss":      TokenIssuer,
		"aud":      TokenAudience,
		"exp":      claims.ExpiresAt.Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      claims.JTI,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken validates signature, issuer, audience and expiry, then extracts the claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	claims := &Claims{UserID: uint(userID)}
	claims.Username, _ = mc["username"].(string)
	claims.JTI, _ = mc["jti"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RevocationKey is the Redis key marking a token ID as signed out.
func RevocationKey(jti string) string {
	return "blacklist:" + jti
}
