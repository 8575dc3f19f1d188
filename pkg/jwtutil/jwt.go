package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "token_type" claim. Access tokens authenticate
// requests; refresh tokens only mint new access tokens.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTConfig holds JWT signing configuration
type JWTConfig struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims represents the signed claims carried by access and refresh tokens.
// TenantID is empty for platform-level tokens that resolve to the shared
// database only.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim (the user identifier)
func (c *Claims) UserID() string {
	return c.Subject
}

// JWTUtil signs and parses tokens with the configured key
type JWTUtil struct {
	config *JWTConfig
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{config: config}
}

// GenerateAccessToken creates a short-lived access token
func (j *JWTUtil) GenerateAccessToken(userID, email, tenantID, role string) (string, error) {
	return j.generate(userID, email, tenantID, role, TokenTypeAccess, j.config.AccessTTL)
}

// GenerateRefreshToken creates a long-lived refresh token and returns the
// token string together with its jti
func (j *JWTUtil) GenerateRefreshToken(userID, email, tenantID, role string) (string, string, error) {
	jti := uuid.New().String()
	token, err := j.generateWithID(userID, email, tenantID, role, TokenTypeRefresh, j.config.RefreshTTL, jti)
	return token, jti, err
}

func (j *JWTUtil) generate(userID, email, tenantID, role, tokenType string, ttl time.Duration) (string, error) {
	return j.generateWithID(userID, email, tenantID, role, tokenType, ttl, uuid.New().String())
}

func (j *JWTUtil) generateWithID(userID, email, tenantID, role, tokenType string, ttl time.Duration, jti string) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	now := time.Now()
	claims := Claims{
		Email:     email,
		TenantID:  tenantID,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ParseToken validates the signature and expiry and returns the claims
func (j *JWTUtil) ParseToken(tokenString string) (*Claims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
