package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_login_total",
			Help: "Total number of login attempts",
		},
	)

	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_register_total",
			Help: "Total number of user registrations",
		},
	)

	TokenRefreshCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_token_refresh_total",
			Help: "Total number of access token refreshes",
		},
	)

	TokenRevokeCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_token_revoke_total",
			Help: "Total number of refresh token revocations",
		},
	)

	// Tenant resolution outcomes per request
	ResolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_tenant_resolutions_total",
			Help: "Total number of tenant resolutions by outcome",
		},
		[]string{"outcome"}, // "tenant", "shared", "unauthenticated", "unknown_tenant", "unavailable"
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"},
	)

	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_tenant_operations_total",
			Help: "Total number of tenant directory operations",
		},
		[]string{"operation"}, // "register", "deactivate", "lookup", "provision"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)

	PoolAcquireDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_pool_acquire_duration_seconds",
			Help:    "Time spent acquiring a tenant connection handle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Gauge metrics
var (
	TenantPoolsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_tenant_pools",
			Help: "Number of tenant pools currently held open",
		},
	)

	PoolHandlesInUseGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_pool_handles_in_use",
			Help: "Number of tenant connection handles currently bound to requests",
		},
	)

	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_active_tokens",
			Help: "Approximate number of outstanding refresh tokens",
		},
	)
)

// InitMetrics registers all metrics with the default registry
func InitMetrics() {
	prometheus.MustRegister(
		LoginCounter,
		RegisterCounter,
		TokenRefreshCounter,
		TokenRevokeCounter,
		ResolutionCounter,
		AuthErrorCounter,
		TenantOperationCounter,
		HTTPRequestCounter,
		RequestDuration,
		DBOperationDuration,
		PoolAcquireDuration,
		TenantPoolsGauge,
		PoolHandlesInUseGauge,
		ActiveTokensGauge,
	)
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

// RecordTenantOperation increments the tenant operation counter
func RecordTenantOperation(operation string) {
	TenantOperationCounter.WithLabelValues(operation).Inc()
}

// RecordResolution increments the resolution outcome counter
func RecordResolution(outcome string) {
	ResolutionCounter.WithLabelValues(outcome).Inc()
}

// TrackDBOperation returns a function that records the duration of a
// database operation when called. Use with defer:
//
//	defer prometheus.TrackDBOperation("query")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware records request counts and durations per endpoint
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		status := strconv.Itoa(c.Response().Status)
		method := c.Request().Method
		endpoint := c.Path()

		HTTPRequestCounter.WithLabelValues(endpoint, method, status).Inc()
		RequestDuration.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler returns an HTTP handler exposing the registered metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
