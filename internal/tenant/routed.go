package tenant

import "gorm.io/gorm"

// DataAccess is the capability handlers use to reach a database. It exposes
// exactly two targets: the current tenant's connection and the shared
// connection. Handlers never name a physical database; this narrow surface
// is the only path to tenant data.
type DataAccess struct {
	tenant *gorm.DB
	shared *gorm.DB
}

// NewDataAccess builds a capability from a bound tenant connection (nil for
// shared-only requests) and the shared connection
func NewDataAccess(tenant, shared *gorm.DB) *DataAccess {
	return &DataAccess{tenant: tenant, shared: shared}
}

// Tenant returns the current tenant's connection, or nil when the request
// resolved to the shared database only
func (d *DataAccess) Tenant() *gorm.DB {
	return d.tenant
}

// HasTenant reports whether a tenant connection is bound
func (d *DataAccess) HasTenant() bool {
	return d.tenant != nil
}

// Shared returns the shared database connection
func (d *DataAccess) Shared() *gorm.DB {
	return d.shared
}
