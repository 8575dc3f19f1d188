package tenant

import (
	"context"
	"fmt"

	"catalog-service/internal/model"
	"catalog-service/pkg/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Provisioner creates and tears down physical tenant databases. The schema
// applied is fixed and identical for every tenant.
type Provisioner interface {
	Provision(ctx context.Context, dbName string) error
	Deprovision(ctx context.Context, dbName string) error
}

// PostgresProvisioner provisions tenant databases on the same server as the
// shared database
type PostgresProvisioner struct {
	shared *gorm.DB
	cfg    *config.Config
	log    *zap.Logger
}

// NewPostgresProvisioner creates a provisioner using the shared connection
// for CREATE/DROP DATABASE statements
func NewPostgresProvisioner(shared *gorm.DB, cfg *config.Config, log *zap.Logger) *PostgresProvisioner {
	return &PostgresProvisioner{shared: shared, cfg: cfg, log: log}
}

// Provision creates the tenant database and applies the tenant schema.
// dbName comes from a validated slug; it is still quoted as an identifier.
func (p *PostgresProvisioner) Provision(ctx context.Context, dbName string) error {
	stmt := fmt.Sprintf(`CREATE DATABASE %q`, dbName)
	if err := p.shared.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("create tenant database %s: %w", dbName, err)
	}

	db, err := openTenantDB(p.cfg, dbName)
	if err != nil {
		return fmt.Errorf("open tenant database %s: %w", dbName, err)
	}
	defer func() {
		if sqlDB, derr := db.DB(); derr == nil {
			sqlDB.Close()
		}
	}()

	if err := db.WithContext(ctx).AutoMigrate(model.TenantModels()...); err != nil {
		return fmt.Errorf("migrate tenant database %s: %w", dbName, err)
	}

	p.log.Info("Provisioned tenant database", zap.String("db_name", dbName))
	return nil
}

// Deprovision drops the tenant database. Used only to roll back a failed
// registration; deactivation never destroys data.
func (p *PostgresProvisioner) Deprovision(ctx context.Context, dbName string) error {
	stmt := fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, dbName)
	if err := p.shared.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("drop tenant database %s: %w", dbName, err)
	}
	return nil
}

// NewPostgresOpener returns the production Opener used by the connection
// pool. The underlying sql.DB is capped at the per-tenant bound so the
// semaphore and the driver agree on the limit.
func NewPostgresOpener(cfg *config.Config) Opener {
	return func(dbName string) (*gorm.DB, error) {
		return openTenantDB(cfg, dbName)
	}
}

func openTenantDB(cfg *config.Config, dbName string) (*gorm.DB, error) {
	pgConfig := postgres.Config{
		DSN:                  cfg.DB.TenantDSN(dbName),
		PreferSimpleProtocol: true,
	}

	db, err := gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.DB.LogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Pool.MaxConnsPerTenant)
	sqlDB.SetMaxIdleConns(cfg.Pool.MaxConnsPerTenant)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, nil
}
