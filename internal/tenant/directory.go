package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"catalog-service/internal/model"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Errors returned by the tenant directory
var (
	ErrUnknownTenant      = errors.New("tenant not found or inactive")
	ErrSlugTaken          = errors.New("a company with a similar name already exists")
	ErrProvisioningFailed = errors.New("tenant database provisioning failed")
)

// Directory is the shared-database-backed registry of tenants. Active
// records are cached in memory since every authenticated request consults
// a lookup; register and deactivate invalidate the cache.
type Directory struct {
	db   *gorm.DB
	prov Provisioner
	log  *zap.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]model.Company
}

// NewDirectory creates a directory over the shared database
func NewDirectory(db *gorm.DB, prov Provisioner, log *zap.Logger) *Directory {
	return &Directory{
		db:    db,
		prov:  prov,
		log:   log,
		cache: make(map[uuid.UUID]model.Company),
	}
}

// Lookup returns the active tenant record for the id. Inactive and missing
// tenants are indistinguishable to callers.
func (d *Directory) Lookup(ctx context.Context, tenantID uuid.UUID) (*model.Company, error) {
	d.mu.RLock()
	if c, ok := d.cache[tenantID]; ok {
		d.mu.RUnlock()
		return &c, nil
	}
	d.mu.RUnlock()

	var company model.Company
	err := d.db.WithContext(ctx).
		Where("id = ? AND active = ?", tenantID, true).
		First(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}

	d.mu.Lock()
	d.cache[tenantID] = company
	d.mu.Unlock()

	return &company, nil
}

// LookupBySlug returns the active tenant record for the slug. Used at
// registration time, not on the request hot path, so it skips the cache.
func (d *Directory) LookupBySlug(ctx context.Context, slug string) (*model.Company, error) {
	var company model.Company
	err := d.db.WithContext(ctx).
		Where("slug = ? AND active = ?", slug, true).
		First(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	return &company, nil
}

// Register creates a company record and provisions its database. The two
// are sequenced atomically: the record only commits after provisioning
// succeeds, and a failed provisioning leaves neither a record nor a
// half-made database behind.
func (d *Directory) Register(ctx context.Context, name, email, phone, address string) (*model.Company, error) {
	prometheus.RecordTenantOperation("register")

	slug := Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("company name %q yields an empty slug", name)
	}

	// Collision pre-check keeps the common failure readable; the unique
	// indexes on slug and db_name still hold under races.
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&model.Company{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrSlugTaken
	}

	company := model.Company{
		ID:      uuid.New(),
		Name:    name,
		Slug:    slug,
		Email:   email,
		Phone:   phone,
		Address: address,
		DBName:  DatabaseNameForSlug(slug),
		Active:  true,
	}

	tx := d.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Create(&company).Error; err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}

	// CREATE DATABASE cannot run inside the transaction; it happens on a
	// separate connection while the record is still uncommitted. A
	// provisioning failure rolls the record back.
	prometheus.RecordTenantOperation("provision")
	if err := d.prov.Provision(ctx, company.DBName); err != nil {
		tx.Rollback()
		if derr := d.prov.Deprovision(ctx, company.DBName); derr != nil {
			d.log.Warn("Failed to clean up after provisioning failure",
				zap.String("db_name", company.DBName),
				zap.Error(derr))
		}
		d.log.Error("Tenant provisioning failed",
			zap.String("slug", slug),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	if err := tx.Commit().Error; err != nil {
		if derr := d.prov.Deprovision(ctx, company.DBName); derr != nil {
			d.log.Warn("Failed to clean up after commit failure",
				zap.String("db_name", company.DBName),
				zap.Error(derr))
		}
		return nil, err
	}

	d.log.Info("Registered tenant",
		zap.String("company_id", company.ID.String()),
		zap.String("slug", slug),
		zap.String("db_name", company.DBName))

	return &company, nil
}

// Deactivate marks the tenant inactive. New resolutions refuse it
// immediately; requests already holding a connection finish undisturbed.
// The record and database survive for reactivation.
func (d *Directory) Deactivate(ctx context.Context, tenantID uuid.UUID) error {
	prometheus.RecordTenantOperation("deactivate")

	res := d.db.WithContext(ctx).
		Model(&model.Company{}).
		Where("id = ?", tenantID).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownTenant
	}

	d.mu.Lock()
	delete(d.cache, tenantID)
	d.mu.Unlock()

	d.log.Info("Deactivated tenant", zap.String("company_id", tenantID.String()))
	return nil
}

// List returns all active companies ordered by creation time
func (d *Directory) List(ctx context.Context) ([]model.Company, error) {
	var companies []model.Company
	err := d.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&companies).Error
	return companies, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// pgx surfaces unique violations as SQLSTATE 23505
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "23505")
}
