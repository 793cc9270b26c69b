package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/models"
	"gorm.io/gorm"
)

// GuestMarkerPrefix identifies anonymous bearer credentials issued to the
// web client before login.
const GuestMarkerPrefix = "guest"

// principalKey is the gin context key holding the resolved principal.
const principalKey = "principal"

// Resolve classifies the request's bearer credential into a Principal and
// stores it in the gin context. It never aborts: downstream handlers decide
// what a Rejected or Guest principal may do.
func Resolve(conn *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, resolve(c, conn, jwtSecret))
		c.Next()
	}
}

// FromContext returns the principal resolved for the request. A missing
// principal resolves to Rejected so handlers fail closed.
func FromContext(c *gin.Context) Principal {
	value, ok := c.Get(principalKey)
	if !ok {
		return Rejected{Reason: ReasonMissing}
	}
	principal, ok := value.(Principal)
	if !ok {
		return Rejected{Reason: ReasonMissing}
	}
	return principal
}

func resolve(c *gin.Context, conn *gorm.DB, jwtSecret string) Principal {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return NewGuest()
	}

	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if credential == "" || strings.HasPrefix(credential, GuestMarkerPrefix) {
		return NewGuest()
	}

	claims, errParse := ParseSessionToken(jwtSecret, credential)
	if errParse != nil {
		if errors.Is(errParse, ErrTokenExpired) {
			return Rejected{Reason: ReasonExpired}
		}
		return Rejected{Reason: ReasonInvalid}
	}

	var user models.User
	errFind := conn.WithContext(c.Request.Context()).First(&user, claims.UserID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Rejected{Reason: ReasonUserNotFound}
		}
		return Rejected{Reason: ReasonUserNotFound}
	}
	return AuthenticatedUser{User: &user}
}
