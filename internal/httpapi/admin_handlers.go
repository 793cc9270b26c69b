package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/ledger"
	"github.com/plotark/plotark/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminHandler serves privileged ledger mutation endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// creditsRequest defines the request body for credit mutation.
type creditsRequest struct {
	Email  string `json:"email"`
	Amount int    `json:"amount"`
	// Set replaces the balance instead of adding to it.
	Set bool `json:"set"`
}

// Credits mutates a user's ledger balance by email.
func (h *AdminHandler) Credits(c *gin.Context) {
	var body creditsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		return
	}

	user, errGrant := ledger.Grant(c.Request.Context(), h.db, email, body.Amount, body.Set)
	if errGrant != nil {
		if errors.Is(errGrant, ledger.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user-not-found"})
			return
		}
		log.WithError(errGrant).Error("credit grant failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email":   user.Email,
		"credits": user.Credits,
	})
}

// Users lists accounts for support use.
func (h *AdminHandler) Users(c *gin.Context) {
	var rows []models.User
	errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	users := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		users = append(users, gin.H{
			"id":          row.ID,
			"email":       row.Email,
			"is_verified": row.IsVerified,
			"credits":     row.Credits,
			"tier":        row.Tier,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
