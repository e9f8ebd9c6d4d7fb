// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTIssuer mints HMAC-signed JWTs for authenticated users. It is the
// default TokenIssuer implementation; applications with their own session
// layer can ignore it and implement TokenIssuer directly.
type JWTIssuer struct {
	secret    []byte
	issuer    string
	audience  []string
	expiresIn time.Duration
}

// JWTIssuerConfig contains configuration for the JWT issuer.
type JWTIssuerConfig struct {
	// Secret is the HMAC signing key (required, at least 32 bytes).
	Secret []byte

	// Issuer is the JWT issuer claim (default: "go-passkey").
	Issuer string

	// Audience is the JWT audience claim (default: ["go-passkey"]).
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour).
	ExpiresIn time.Duration
}

// NewJWTIssuer creates a new JWT issuer with the given configuration.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &JWTIssuer{
		secret:    config.Secret,
		issuer:    issuer,
		audience:  audience,
		expiresIn: expiresIn,
	}, nil
}

// IssueToken creates a JWT for the authenticated user. The subject is the
// base64url-encoded user handle; the username travels in a custom claim.
func (g *JWTIssuer) IssueToken(ctx context.Context, user *User) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":      g.issuer,
		"aud":      g.audience,
		"sub":      base64.RawURLEncoding.EncodeToString(user.Handle),
		"iat":      now.Unix(),
		"exp":      now.Add(g.expiresIn).Unix(),
		"nbf":      now.Unix(),
		"jti":      uuid.NewString(),
		"username": user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken verifies a JWT minted by this issuer and returns its claims.
func (g *JWTIssuer) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	},
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// ExpiresIn returns the token expiration duration.
func (g *JWTIssuer) ExpiresIn() time.Duration {
	return g.expiresIn
}
