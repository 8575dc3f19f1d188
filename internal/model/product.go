package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product statuses
const (
	ProductStatusDraft    = "draft"
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
	ProductStatusArchived = "archived"
)

// Product lives in a tenant database. Every company has its own isolated
// catalog; rows are only ever reached through the request's routed
// connection, never by naming a database.
type Product struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);index;not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(280);index;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`

	// Pricing
	Price     float64  `json:"price" gorm:"type:decimal(10,2);default:0"`
	CostPrice *float64 `json:"cost_price,omitempty" gorm:"type:decimal(10,2)"`

	// Inventory
	SKU      string `json:"sku,omitempty" gorm:"type:varchar(100);index"`
	Quantity int    `json:"quantity" gorm:"default:0"`

	Status     string `json:"status" gorm:"type:varchar(20);default:'draft'"`
	IsFeatured bool   `json:"is_featured" gorm:"default:false"`

	MetaTitle       string `json:"meta_title,omitempty" gorm:"type:varchar(255)"`
	MetaDescription string `json:"meta_description,omitempty" gorm:"type:text"`

	// User ids from the shared database; no cross-database relation
	CreatedBy *uuid.UUID `json:"created_by,omitempty" gorm:"type:uuid"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Images []ProductImage `json:"images,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// BeforeCreate assigns an id when one was not supplied
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductImage stores image metadata per product. The binary itself lives
// in external storage; Path points at it.
type ProductImage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;index;not null"`
	Path      string    `json:"path" gorm:"type:varchar(255);not null"`
	AltText   string    `json:"alt_text,omitempty" gorm:"type:varchar(255)"`
	IsPrimary bool      `json:"is_primary" gorm:"default:false"`
	SortOrder int       `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the ProductImage model
func (ProductImage) TableName() string {
	return "product_images"
}

// BeforeCreate assigns an id when one was not supplied
func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TenantModels lists every model migrated into each tenant database
func TenantModels() []interface{} {
	return []interface{}{&Product{}, &ProductImage{}}
}
