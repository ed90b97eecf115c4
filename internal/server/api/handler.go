// Package api exposes the server's public JSON API: session endpoints,
// billing verification, profile, AI chat and operational routes. Handlers
// validate typed request bodies, call the service layer and translate
// service errors to HTTP statuses; no business logic lives here.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
	"github.com/sarbazinfo/sarbaz-server/internal/server/services"
)

const healthCheckTimeout = 2 * time.Second

// Service seams consumed by the handlers; satisfied by the concrete services.

type authService interface {
	Login(ctx context.Context, idToken string) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) (int64, error)
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	DeleteAccount(ctx context.Context, userID int64) error
}

type billingService interface {
	VerifyGoogle(ctx context.Context, userID int64, purchaseToken string) (*services.Entitlement, error)
	VerifyApple(ctx context.Context, userID int64, productID, payload, transactionID string) (*services.Entitlement, error)
}

type aiService interface {
	Chat(ctx context.Context, user *models.User, message string) (*services.ChatResult, error)
	UsageToday(ctx context.Context, userID int64) (int, error)
	FreeDailyLimit() int
}

type appInfoService interface {
	Current() (map[string]any, bool)
}

// Handler wires the service layer to the HTTP routes.
type Handler struct {
	auth    authService
	billing billingService
	ai      aiService
	appInfo appInfoService
	db      *sql.DB
	logger  logging.Logger
	now     func() time.Time
}

func NewHandler(auth authService, billing billingService, ai aiService, appInfo appInfoService, db *sql.DB, logger logging.Logger) *Handler {
	return &Handler{
		auth:    auth,
		billing: billing,
		ai:      ai,
		appInfo: appInfo,
		db:      db,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes attaches all endpoints to the engine. Billing request
// bodies keep the camelCase field names the mobile clients already send;
// everything the server originates is snake_case.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)

	api := r.Group("/api")
	api.POST("/social-login", h.socialLogin)
	api.POST("/auth/refresh", h.refresh)
	api.POST("/auth/logout", h.logout)
	api.GET("/app-version", h.appVersion)

	protected := api.Group("/")
	protected.Use(h.requireAuth())
	protected.POST("/auth/logout-all", h.logoutAll)
	protected.GET("/me", h.me)
	protected.GET("/profile", h.profile)
	protected.DELETE("/account", h.deleteAccount)
	protected.POST("/billing/verify", h.verifyGoogle)
	protected.POST("/billing/apple/verify", h.verifyApple)
	protected.POST("/ai/chat", h.chat)
}

type userResponse struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	AvatarURL    string     `json:"avatar_url"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until"`
}

func (h *Handler) toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		AvatarURL:    user.AvatarURL,
		IsPremium:    user.IsPremium(h.now()),
		PremiumUntil: user.PremiumUntil,
	}
}

type entitlementResponse struct {
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until"`
}

func toEntitlementResponse(ent *services.Entitlement) entitlementResponse {
	return entitlementResponse{IsPremium: ent.IsPremium, PremiumUntil: ent.PremiumUntil}
}

func (h *Handler) socialLogin(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_token required"})
		return
	}

	user, pair, err := h.auth.Login(c.Request.Context(), req.IDToken)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user":          h.toUserResponse(user),
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// logout answers success no matter whether the token named a live session,
// so the endpoint cannot be used to probe token validity.
func (h *Handler) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) logoutAll(c *gin.Context) {
	user := currentUser(c)

	revoked, err := h.auth.LogoutAll(c.Request.Context(), user.ID)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessions_revoked": revoked})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, h.toUserResponse(currentUser(c)))
}

func (h *Handler) profile(c *gin.Context) {
	user := currentUser(c)
	now := h.now()

	resp := gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"avatar_url": user.AvatarURL,
		"premium": gin.H{
			"is_premium":    user.IsPremium(now),
			"premium_until": user.PremiumUntil,
			"days_left":     user.PremiumDaysLeft(now),
		},
	}

	// Premium accounts are not metered; -1 marks the unlimited tier.
	if user.IsPremium(now) {
		resp["ai"] = gin.H{"used_today": 0, "limit": -1, "remaining": -1}
		c.JSON(http.StatusOK, resp)
		return
	}

	used, err := h.ai.UsageToday(c.Request.Context(), user.ID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	limit := h.ai.FreeDailyLimit()
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	resp["ai"] = gin.H{"used_today": used, "limit": limit, "remaining": remaining}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	user := currentUser(c)

	if err := h.auth.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) verifyGoogle(c *gin.Context) {
	var req struct {
		PurchaseToken string `json:"purchaseToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purchaseToken required"})
		return
	}

	ent, err := h.billing.VerifyGoogle(c.Request.Context(), currentUser(c).ID, req.PurchaseToken)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEntitlementResponse(ent))
}

func (h *Handler) verifyApple(c *gin.Context) {
	var req struct {
		ProductID     string `json:"productId" binding:"required"`
		ReceiptData   string `json:"receiptData" binding:"required"`
		TransactionID string `json:"transactionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId/receiptData required"})
		return
	}

	ent, err := h.billing.VerifyApple(c.Request.Context(), currentUser(c).ID, req.ProductID, req.ReceiptData, req.TransactionID)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEntitlementResponse(ent))
}

func (h *Handler) chat(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}

	result, err := h.ai.Chat(c.Request.Context(), currentUser(c), req.Message)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	limit := result.DailyLimit
	if result.Unlimited {
		limit = -1
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":          result.Reply,
		"requests_today": result.UsedToday,
		"requests_limit": limit,
	})
}

// appVersion serves the per-platform slice of the app info document;
// unknown platforms fall back to android, matching the oldest clients.
func (h *Handler) appVersion(c *gin.Context) {
	doc, ok := h.appInfo.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app version not configured"})
		return
	}

	platform := strings.ToLower(c.DefaultQuery("platform", "android"))
	if cfg, ok := doc[platform].(map[string]any); ok {
		c.JSON(http.StatusOK, cfg)
		return
	}
	if cfg, ok := doc["android"].(map[string]any); ok {
		c.JSON(http.StatusOK, cfg)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// serviceError maps service failures to responses. Authentication failures
// share one message so responses never reveal whether a token was unknown,
// expired or revoked.
func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrUserBlocked):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, common.ErrDailyLimitReached):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily limit reached"})
	default:
		h.logger.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
