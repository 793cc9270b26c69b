package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/auth"
	"github.com/plotark/plotark/internal/config"
	"github.com/plotark/plotark/internal/mail"
	"github.com/plotark/plotark/internal/models"
	"github.com/plotark/plotark/internal/security"
	"github.com/plotark/plotark/internal/verification"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler serves registration, login, and email verification.
type AuthHandler struct {
	db       *gorm.DB
	jwtCfg   config.JWTConfig
	verifier *verification.Service
	mailer   mail.Mailer
	mailCfg  config.MailConfig
}

// NewAuthHandler constructs an AuthHandler. A nil mailer degrades
// registration responses to carry the verification token directly.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, verifier *verification.Service, mailer mail.Mailer, mailCfg config.MailConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, verifier: verifier, mailer: mailer, mailCfg: mailCfg}
}

// credentialsRequest defines the request body for register and login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new account and dispatches its verification email.
func (h *AuthHandler) Register(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-credentials"})
		return
	}
	email := strings.TrimSpace(body.Email)
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-credentials"})
		return
	}

	var existing models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&existing).Error
	if errFind == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email-exists"})
		return
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	user := models.User{
		Email:    email,
		Password: hash,
		Credits:  models.DefaultSignupCredits,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	token, errIssue := h.verifier.Issue(email)
	if errIssue != nil {
		log.WithError(errIssue).Error("issue verification token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	response := gin.H{
		"message": "registered, confirm your email",
		"credits": user.Credits,
	}
	delivered := false
	if h.mailer != nil {
		msg := mail.VerificationEmail(email, h.mailCfg.VerifyURL, token)
		if errSend := h.mailer.Send(c.Request.Context(), msg); errSend != nil {
			// Mail failure degrades the response, it never aborts signup.
			log.WithError(errSend).Warn("verification email failed, returning token in response")
		} else {
			delivered = true
		}
	}
	if !delivered {
		response["verification_token"] = token
	}
	c.JSON(http.StatusCreated, response)
}

// Login verifies credentials and issues a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-credentials"})
		return
	}
	email := strings.TrimSpace(body.Email)
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-credentials"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}
	if !security.VerifyPassword(password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
		return
	}

	token, errIssue := auth.IssueSessionToken(h.jwtCfg.Secret, user.ID, h.jwtCfg.Expiry)
	if errIssue != nil {
		log.WithError(errIssue).Error("issue session token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"is_verified": user.IsVerified,
		"credits":     user.Credits,
	})
}

// verifyRequest defines the request body for POST verification.
type verifyRequest struct {
	Token string `json:"token"`
}

// Verify redeems a verification token from the query string or body.
func (h *AuthHandler) Verify(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		var body verifyRequest
		if errBind := c.ShouldBindJSON(&body); errBind == nil {
			token = strings.TrimSpace(body.Token)
		}
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token-invalid"})
		return
	}

	outcome, errRedeem := h.verifier.Redeem(c.Request.Context(), token)
	if errRedeem != nil {
		switch {
		case errors.Is(errRedeem, verification.ErrTokenExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "token-expired"})
		case errors.Is(errRedeem, verification.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "token-invalid"})
		case errors.Is(errRedeem, verification.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user-not-found"})
		default:
			log.WithError(errRedeem).Error("verification redeem failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		}
		return
	}

	message := "email verified"
	if outcome.AlreadyVerified {
		message = "already verified"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "email": outcome.Email})
}
