package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/auth"
	"github.com/plotark/plotark/internal/catalog"
	"github.com/plotark/plotark/internal/config"
	"github.com/plotark/plotark/internal/mail"
	"github.com/plotark/plotark/internal/outline"
	"github.com/plotark/plotark/internal/ratelimit"
	"github.com/plotark/plotark/internal/verification"
	"gorm.io/gorm"
)

// Deps bundles the collaborators the route tree needs.
type Deps struct {
	DB          *gorm.DB
	JWT         config.JWTConfig
	AdminSecret string
	Mail        config.MailConfig
	Mailer      mail.Mailer
	Verifier    *verification.Service
	Outlines    *outline.Service
	Catalog     *catalog.Catalog
	Limiter     *ratelimit.Manager
	RateLimits  ratelimit.SettingsProvider
}

// RegisterRoutes wires middleware and handlers onto the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	r.GET("/healthz", healthz(deps.DB))

	api := r.Group("/v0")
	api.Use(GlobalRateLimit(deps.Limiter, deps.RateLimits))
	api.Use(auth.Resolve(deps.DB, deps.JWT.Secret))

	authHandler := NewAuthHandler(deps.DB, deps.JWT, deps.Verifier, deps.Mailer, deps.Mail)
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	api.GET("/verify", authHandler.Verify)
	api.POST("/verify", authHandler.Verify)

	modelHandler := NewModelHandler(deps.Catalog)
	api.GET("/models", modelHandler.List)

	outlineHandler := NewOutlineHandler(deps.Outlines)
	api.POST("/generate", GenerateRateLimit(deps.Limiter, deps.RateLimits), outlineHandler.Generate)
	api.GET("/outlines", outlineHandler.List)
	api.POST("/outlines", outlineHandler.Save)
	api.DELETE("/outlines/:id", outlineHandler.Delete)

	adminGroup := api.Group("/admin")
	adminGroup.Use(AdminGate(deps.AdminSecret))

	adminHandler := NewAdminHandler(deps.DB)
	adminGroup.POST("/credits", adminHandler.Credits)
	adminGroup.GET("/users", adminHandler.Users)
}

// healthz reports database reachability.
func healthz(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, errDB := conn.DB()
		if errDB != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
