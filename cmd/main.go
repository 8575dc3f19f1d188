package main

import (
	"context"
	"time"

	"catalog-service/internal/handler"
	mid "catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/tenant"
	"catalog-service/internal/token"
	"catalog-service/pkg/config"
	"catalog-service/pkg/database"
	"catalog-service/pkg/jwtutil"
	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting catalog-service", appConfig.LogConfig()...)

	// Initialize Prometheus metrics
	prometheus.InitMetrics()

	// Initialize the shared database and run its migrations
	sharedDB, err := database.InitDB(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize shared database", zap.Error(err))
	}
	if err := database.MigrateModels(model.SharedModels()...); err != nil {
		log.Fatal("Failed to migrate shared database", zap.Error(err))
	}
	log.Info("Shared database ready")

	// Token service over the shared store
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey: appConfig.JWT.SigningKey,
		AccessTTL:  appConfig.JWT.AccessTTL,
		RefreshTTL: appConfig.JWT.RefreshTTL,
	})
	tokenService := token.NewService(jwtUtil, token.NewGormStore(sharedDB), log)

	// Tenant directory with provisioning, and the per-tenant pool
	provisioner := tenant.NewPostgresProvisioner(sharedDB, appConfig, log)
	directory := tenant.NewDirectory(sharedDB, provisioner, log)

	pool := tenant.NewPool(tenant.NewPostgresOpener(appConfig), tenant.PoolConfig{
		MaxConnsPerTenant: int64(appConfig.Pool.MaxConnsPerTenant),
		AcquireTimeout:    appConfig.Pool.AcquireTimeout,
		IdleEviction:      appConfig.Pool.IdleEviction,
	}, log)
	pool.StartEviction()
	defer pool.Shutdown()

	resolver := tenant.NewResolver(tokenService, directory, pool, sharedDB, log)

	// Background sweep of expired token records
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			tokenService.SweepExpired(context.Background())
		}
	}()

	// Handlers
	authHandler := handler.NewAuthHandler(sharedDB, tokenService, directory)
	companyHandler := handler.NewCompanyHandler(directory)
	productHandler := handler.NewProductHandler()
	imageHandler := handler.NewImageHandler()

	// Initialize Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(prometheus.MetricsMiddleware)

	// Operational endpoints
	e.GET("/metrics", echo.WrapHandler(prometheus.Handler()))
	e.GET("/health", handler.Health)

	// Public auth endpoints: no tenant resolved yet
	auth := e.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/token/refresh", authHandler.Refresh)
	auth.GET("/companies", companyHandler.List)

	// Everything below runs inside per-request tenant routing
	routed := mid.RequestRouter(resolver)

	profile := e.Group("/api/auth", routed)
	profile.GET("/profile", authHandler.Profile)
	profile.PUT("/profile", authHandler.UpdateProfile)
	profile.POST("/password/change", authHandler.ChangePassword)

	companies := e.Group("/api/companies", routed, mid.RequireRole(model.RoleAdmin))
	companies.POST("/:id/deactivate", companyHandler.Deactivate)

	// Product reads are open to any company member; writes need admin or
	// manager
	products := e.Group("/api/products", routed, mid.RequireTenant)
	products.GET("", productHandler.List)
	products.GET("/:id", productHandler.Get)
	products.GET("/:id/images", imageHandler.ListForProduct)
	products.GET("/:id/images/:imageId", imageHandler.Get)

	manage := e.Group("/api/products", routed, mid.RequireTenant,
		mid.RequireRole(model.RoleAdmin, model.RoleManager))
	manage.POST("", productHandler.Create)
	manage.PUT("/:id", productHandler.Update)
	manage.DELETE("/:id", productHandler.Delete)
	manage.POST("/:id/images", imageHandler.AddToProduct)
	manage.PUT("/:id/images/:imageId", imageHandler.Update)
	manage.DELETE("/:id/images/:imageId", imageHandler.Delete)

	// Start server
	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}
