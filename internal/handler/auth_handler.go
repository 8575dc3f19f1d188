package handler

import (
	"errors"
	"net/http"
	"time"

	"catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/tenant"
	"catalog-service/internal/token"
	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler serves registration, login and token lifecycle endpoints.
// These run outside per-request tenant routing: no tenant is resolved yet.
type AuthHandler struct {
	db        *gorm.DB
	tokens    *token.Service
	directory *tenant.Directory
}

// NewAuthHandler creates an auth handler over the shared database
func NewAuthHandler(db *gorm.DB, tokens *token.Service, directory *tenant.Directory) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens, directory: directory}
}

// Register creates a new user. Providing company_name registers a fresh
// company (and provisions its database); providing company_id joins an
// existing one. The first user of a new company becomes its admin.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email           string     `json:"email"`
		Password        string     `json:"password"`
		PasswordConfirm string     `json:"password_confirm"`
		FirstName       string     `json:"first_name"`
		LastName        string     `json:"last_name"`
		CompanyName     string     `json:"company_name,omitempty"`
		CompanyID       *uuid.UUID `json:"company_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	if req.PasswordConfirm != "" && req.Password != req.PasswordConfirm {
		prometheus.RecordAuthError("password_mismatch")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}
	if req.CompanyName == "" && req.CompanyID == nil {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "either company_name or company_id must be provided"})
	}

	ctx := c.Request().Context()

	// Check if user already exists
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		log.Warn("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	var (
		company *model.Company
		role    = model.RoleUser
		err     error
	)

	if req.CompanyName != "" {
		company, err = h.directory.Register(ctx, req.CompanyName, req.Email, "", "")
		if err != nil {
			if errors.Is(err, tenant.ErrSlugTaken) {
				prometheus.RecordAuthError("company_slug_taken")
				return c.JSON(http.StatusConflict, echo.Map{"error": "a company with a similar name already exists"})
			}
			log.Error("Company registration failed", zap.Error(err))
			prometheus.RecordAuthError("company_registration_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
		}
		// First user of a fresh company administers it
		role = model.RoleAdmin
	} else {
		company, err = h.directory.Lookup(ctx, *req.CompanyID)
		if err != nil {
			prometheus.RecordAuthError("company_not_found")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "company not found or inactive"})
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		Email:     req.Email,
		Password:  string(hashed),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CompanyID: &company.ID,
		Role:      role,
		Active:    true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.Error(err))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	pair, err := h.tokens.Issue(ctx, user.ID, user.Email, company.ID.String(), user.Role)
	if err != nil {
		log.Error("Failed to issue tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User registered",
		zap.String("email", user.Email),
		zap.String("company_id", company.ID.String()),
		zap.String("role", user.Role))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registration successful",
		"user":    user,
		"company": company,
		"tokens":  pair,
	})
}

// Login verifies credentials and issues a token pair carrying the user's
// company claim
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := c.Request().Context()

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		log.Warn("Login for unknown user", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if !user.Active {
		prometheus.RecordAuthError("user_inactive")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is disabled"})
	}

	tenantID := ""
	if user.CompanyID != nil {
		tenantID = user.CompanyID.String()
	}

	pair, err := h.tokens.Issue(ctx, user.ID, user.Email, tenantID, user.Role)
	if err != nil {
		log.Error("Failed to issue tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("tenant_id", tenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Login successful",
		"user":    user,
		"tokens":  pair,
	})
}

// Logout revokes the supplied refresh token so it can no longer mint
// access tokens
func (h *AuthHandler) Logout(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token is required"})
	}

	if err := h.tokens.Revoke(c.Request().Context(), req.Refresh); err != nil {
		log.Warn("Logout with invalid refresh token", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid refresh token"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Logout successful"})
}

// Refresh exchanges a refresh token for a new access token
func (h *AuthHandler) Refresh(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token is required"})
	}

	access, err := h.tokens.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenRevoked):
			prometheus.RecordAuthError("token_revoked")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has been revoked"})
		case errors.Is(err, token.ErrTokenExpired):
			prometheus.RecordAuthError("token_expired")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has expired"})
		default:
			log.Warn("Refresh with invalid token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"access": access})
}

// Profile returns the authenticated user's record from the shared database
func (h *AuthHandler) Profile(c echo.Context) error {
	rc, ok := middleware.RoutingContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var user model.User
	err := h.db.WithContext(c.Request().Context()).
		Preload("Company").
		First(&user, "id = ?", rc.UserID).Error
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's name fields
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	log := logger.FromEcho(c)
	rc, ok := middleware.RoutingContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.WithContext(c.Request().Context()).
		Model(&model.User{}).
		Where("id = ?", rc.UserID).
		Updates(updates).Error; err != nil {
		log.Error("Failed to update profile", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "profile update failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated successfully"})
}

// ChangePassword verifies the current password and sets a new one
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	log := logger.FromEcho(c)
	rc, ok := middleware.RoutingContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "old_password and new_password are required"})
	}

	ctx := c.Request().Context()

	var user model.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", rc.UserID).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current password is incorrect"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	if err := h.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("password", string(hashed)).Error; err != nil {
		log.Error("Failed to update password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	log.Info("Password changed", zap.String("user_id", user.ID.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}
