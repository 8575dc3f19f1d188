package token

import (
	"context"
	"errors"
	"time"

	"catalog-service/internal/model"
	"catalog-service/pkg/jwtutil"
	"catalog-service/prometheus"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors returned by the token service
var (
	ErrInvalidToken = errors.New("token is malformed or has a bad signature")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Pair is an issued access/refresh token pair
type Pair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// Store persists outstanding and blacklisted refresh tokens. All writes go
// to the shared database; no tenant database is ever touched here.
type Store interface {
	RecordOutstanding(ctx context.Context, t model.OutstandingToken) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	// Blacklist reports whether it inserted a new entry; re-revoking an
	// already revoked jti is a no-op
	Blacklist(ctx context.Context, t model.BlacklistedToken) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Service issues, verifies, refreshes and revokes signed tokens
type Service struct {
	jwt   *jwtutil.JWTUtil
	store Store
	log   *zap.Logger
}

// NewService creates a token service
func NewService(jwt *jwtutil.JWTUtil, store Store, log *zap.Logger) *Service {
	return &Service{jwt: jwt, store: store, log: log}
}

// Issue creates an access/refresh token pair for the user. tenantID is
// empty for platform users without a company.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, email, tenantID, role string) (*Pair, error) {
	access, err := s.jwt.GenerateAccessToken(userID.String(), email, tenantID, role)
	if err != nil {
		return nil, err
	}

	refresh, jti, err := s.jwt.GenerateRefreshToken(userID.String(), email, tenantID, role)
	if err != nil {
		return nil, err
	}

	claims, err := s.jwt.ParseToken(refresh)
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordOutstanding(ctx, model.OutstandingToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		return nil, err
	}

	prometheus.ActiveTokensGauge.Inc()
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify validates an access token and returns its claims. It never
// consults the tenant directory; that happens at resolution time.
func (s *Service) Verify(tokenString string) (*jwtutil.Claims, error) {
	claims, err := s.jwt.ParseToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims.TokenType != jwtutil.TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh verifies a refresh token against the blacklist and mints a new
// access token carrying the same identity and tenant claims.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ParseToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	if claims.TokenType != jwtutil.TokenTypeRefresh {
		return "", ErrInvalidToken
	}

	revoked, err := s.store.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrTokenRevoked
	}

	prometheus.TokenRefreshCounter.Inc()
	return s.jwt.GenerateAccessToken(claims.UserID(), claims.Email, claims.TenantID, claims.Role)
}

// Revoke blacklists a refresh token so subsequent Refresh calls fail.
// Idempotent: revoking an already revoked token succeeds.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.ParseToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// An expired token needs no blacklist entry
			return nil
		}
		return ErrInvalidToken
	}

	if claims.TokenType != jwtutil.TokenTypeRefresh {
		return ErrInvalidToken
	}

	created, err := s.store.Blacklist(ctx, model.BlacklistedToken{
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
	if err != nil {
		return err
	}

	// Repeat revocations of the same jti must not drift the metrics
	if created {
		prometheus.TokenRevokeCounter.Inc()
		prometheus.ActiveTokensGauge.Dec()
	}
	return nil
}

// SweepExpired removes blacklist and outstanding entries whose tokens have
// expired anyway. Safe to call periodically from a background goroutine.
func (s *Service) SweepExpired(ctx context.Context) {
	deleted, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Warn("Token sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.log.Info("Swept expired token records", zap.Int64("deleted", deleted))
	}
}
