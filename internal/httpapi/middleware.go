package httpapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/ratelimit"
	log "github.com/sirupsen/logrus"
)

// dayWindow and hourWindow define the fixed rate-limit windows.
const (
	dayWindow  = 24 * time.Hour
	hourWindow = time.Hour
)

// GlobalRateLimit enforces the per-address daily and hourly ceilings on
// every route. Attempts are counted against all applicable windows even
// when one of them rejects.
func GlobalRateLimit(manager *ratelimit.Manager, provider ratelimit.SettingsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := provider()
		addr := c.ClientIP()

		dayResult, errDay := manager.Allow(c.Request.Context(), ratelimit.AddressKey(addr, ratelimit.WindowDay), cfg.PerDay, dayWindow)
		if errDay != nil {
			log.WithError(errDay).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}
		hourResult, errHour := manager.Allow(c.Request.Context(), ratelimit.AddressKey(addr, ratelimit.WindowHour), cfg.PerHour, hourWindow)
		if errHour != nil {
			log.WithError(errHour).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}

		if !dayResult.Allowed {
			rejectRateLimited(c, dayResult)
			return
		}
		if !hourResult.Allowed {
			rejectRateLimited(c, hourResult)
			return
		}
		c.Next()
	}
}

// GenerateRateLimit enforces the stricter per-address daily ceiling on the
// generation route, independently of the global ceilings.
func GenerateRateLimit(manager *ratelimit.Manager, provider ratelimit.SettingsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := provider()
		addr := c.ClientIP()

		result, errAllow := manager.Allow(c.Request.Context(), ratelimit.AddressKey(addr, ratelimit.WindowGenerate), cfg.GeneratePerDay, dayWindow)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}
		if !result.Allowed {
			rejectRateLimited(c, result)
			return
		}
		c.Next()
	}
}

func rejectRateLimited(c *gin.Context, result ratelimit.Result) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":   "rate-limited",
		"message": fmt.Sprintf("rate limit exceeded, retry after %s", result.Reset.UTC().Format(time.RFC3339)),
	})
}

// AdminGate rejects requests whose X-Admin-Secret header does not exactly
// match the configured admin secret. An empty configured secret disables
// the admin surface entirely.
func AdminGate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
