package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company represents a tenant. Each active company owns one isolated
// physical database named by DBName; that name is unique across all
// companies so two tenants can never resolve to the same database.
type Company struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name    string    `json:"name" gorm:"type:varchar(255);not null"`
	Slug    string    `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email   string    `json:"email" gorm:"type:varchar(255);uniqueIndex"`
	Phone   string    `json:"phone,omitempty" gorm:"type:varchar(20)"`
	Address string    `json:"address,omitempty" gorm:"type:text"`

	// Name of the tenant database provisioned for this company
	DBName string `json:"-" gorm:"type:varchar(100);uniqueIndex;not null"`

	// Deactivated companies keep their rows and databases; only new
	// resolutions are refused
	Active bool `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the table name for the Company model
func (Company) TableName() string {
	return "companies"
}

// BeforeCreate assigns an id when one was not supplied
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
