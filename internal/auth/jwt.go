// Package auth verifies bearer tokens issued by the court platform.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("token subject is not a user id")
)

// Config contains JWT settings.
type Config struct {
	SecretKey string
	Issuer    string
	Leeway    time.Duration
}

// Claims are the token claims the queue relies on.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Authenticator validates HS256 access tokens and, for tooling, issues them.
type Authenticator struct {
	config Config
	parser *jwt.Parser
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &Authenticator{
		config: config,
		parser: jwt.NewParser(opts...),
	}
}

// ValidateToken checks the signature and expiry and returns the clerk's user id and role.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (int64, string, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", ErrInvalidSubject
	}

	return userID, claims.Role, nil
}

// IssueToken signs a token for userID valid for ttl.
func (a *Authenticator) IssueToken(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
