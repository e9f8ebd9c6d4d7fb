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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewJWTIssuer_Validation(t *testing.T) {
	_, err := NewJWTIssuer(nil)
	assert.Error(t, err)

	_, err = NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("too short")})
	assert.Error(t, err)

	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: testJWTSecret})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.ExpiresIn())
}

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{
		Secret:   testJWTSecret,
		Issuer:   "test-issuer",
		Audience: []string{"test-audience"},
	})
	require.NoError(t, err)

	user := &User{
		Handle:   []byte("0123456789abcdef"),
		Username: "alice",
	}

	token, err := issuer.IssueToken(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "test-issuer", claims["iss"])
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(user.Handle), claims["sub"])
	assert.NotEmpty(t, claims["jti"])
}

func TestJWTIssuer_RejectsForeignToken(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	other, err := NewJWTIssuer(&JWTIssuerConfig{
		Secret: []byte("ffffffffffffffffffffffffffffffff"),
	})
	require.NoError(t, err)

	token, err := other.IssueToken(context.Background(), &User{Handle: []byte("h"), Username: "alice"})
	require.NoError(t, err)

	_, err = issuer.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTIssuer_RejectsExpiredToken(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{
		Secret:    testJWTSecret,
		ExpiresIn: -time.Minute,
	})
	require.NoError(t, err)

	token, err := issuer.IssueToken(context.Background(), &User{Handle: []byte("h"), Username: "alice"})
	require.NoError(t, err)

	_, err = issuer.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTIssuer_RejectsGarbage(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	_, err = issuer.VerifyToken("not.a.token")
	assert.Error(t, err)
}
