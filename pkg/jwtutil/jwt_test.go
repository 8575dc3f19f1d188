package jwtutil

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		SigningKey: "unit-test-key",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	util := NewJWTUtil(testConfig())

	token, err := util.GenerateAccessToken("user-1", "user@example.com", "tenant-1", "manager")
	require.NoError(t, err)

	claims, err := util.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenCarriesJTI(t *testing.T) {
	util := NewJWTUtil(testConfig())

	token, jti, err := util.GenerateRefreshToken("user-1", "user@example.com", "", "user")
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := util.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	assert.Empty(t, claims.TenantID)
}

func TestParseTokenRejectsWrongKey(t *testing.T) {
	util := NewJWTUtil(testConfig())
	other := NewJWTUtil(&JWTConfig{SigningKey: "another-key", AccessTTL: time.Minute})

	token, err := other.GenerateAccessToken("user-1", "user@example.com", "", "user")
	require.NoError(t, err)

	_, err = util.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsTampering(t *testing.T) {
	util := NewJWTUtil(testConfig())

	token, err := util.GenerateAccessToken("user-1", "user@example.com", "tenant-1", "user")
	require.NoError(t, err)

	// Flip a character in the payload segment
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	parts[1] = string(payload)

	_, err = util.ParseToken(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "unit-test-key", AccessTTL: -time.Minute})

	token, err := util.GenerateAccessToken("user-1", "user@example.com", "", "user")
	require.NoError(t, err)

	_, err = util.ParseToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseTokenRejectsUnsignedAlg(t *testing.T) {
	util := NewJWTUtil(testConfig())

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = util.ParseToken(token)
	assert.Error(t, err)
}

func TestNilConfig(t *testing.T) {
	util := NewJWTUtil(nil)

	_, err := util.GenerateAccessToken("user-1", "user@example.com", "", "user")
	assert.Error(t, err)

	_, err = util.ParseToken("anything")
	assert.Error(t, err)
}
