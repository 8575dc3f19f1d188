package model

import (
	"time"

	"github.com/google/uuid"
)

// OutstandingToken records an issued refresh token in the shared database.
// Rows exist so a logout can be matched against a token that was actually
// issued, and so expired tokens can be swept.
type OutstandingToken struct {
	JTI       string    `json:"jti" gorm:"type:varchar(64);primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the OutstandingToken model
func (OutstandingToken) TableName() string {
	return "outstanding_tokens"
}

// BlacklistedToken marks a refresh token as revoked before its natural
// expiry. Consulted on every refresh; garbage-collected once expired.
type BlacklistedToken struct {
	JTI       string    `json:"jti" gorm:"type:varchar(64);primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the BlacklistedToken model
func (BlacklistedToken) TableName() string {
	return "blacklisted_tokens"
}

// IsExpired checks if the blacklist entry has outlived the token it blocks
func (t *BlacklistedToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// SharedModels lists every model migrated into the shared database
func SharedModels() []interface{} {
	return []interface{}{&Company{}, &User{}, &OutstandingToken{}, &BlacklistedToken{}}
}
