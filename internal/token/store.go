package token

import (
	"context"
	"time"

	"catalog-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists token records in the shared database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the shared database
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// RecordOutstanding inserts a row for a freshly issued refresh token
func (s *GormStore) RecordOutstanding(ctx context.Context, t model.OutstandingToken) error {
	return s.db.WithContext(ctx).Create(&t).Error
}

// IsBlacklisted reports whether the jti has been revoked
func (s *GormStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.BlacklistedToken{}).
		Where("jti = ?", jti).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Blacklist inserts a revocation entry and reports whether a row was
// created; re-revoking the same jti is a no-op
func (s *GormStore) Blacklist(ctx context.Context, t model.BlacklistedToken) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&t)
	return res.RowsAffected > 0, res.Error
}

// DeleteExpired removes blacklist and outstanding rows past their expiry
func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.BlacklistedToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	deleted := res.RowsAffected

	res = s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.OutstandingToken{})
	if res.Error != nil {
		return deleted, res.Error
	}
	return deleted + res.RowsAffected, nil
}
