package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub/pkg/crypto"
	"github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/response"
)

// MaintenanceAuthConfig decides who may trigger maintenance jobs over HTTP.
type MaintenanceAuthConfig struct {
	// Secret, when set, must be presented as a bearer token and is the only accepted credential.
	Secret string
	// SchedulerUserAgent is the User-Agent prefix of the platform scheduler, used when no secret is set.
	SchedulerUserAgent string
	// Development accepts any caller when neither of the above matched.
	Development bool
}

// MaintenanceAuth guards the maintenance endpoints.
func MaintenanceAuth(cfg MaintenanceAuthConfig) gin.HandlerFunc {
	secret := strings.TrimSpace(cfg.Secret)
	agent := strings.TrimSpace(cfg.SchedulerUserAgent)
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		if secret != "" {
			token, ok := bearerToken(c)
			if ok && crypto.ConstantTimeEqual(token, secret) {
				c.Next()
				return
			}
			log.Warn("maintenance trigger rejected", zap.String("client_ip", c.ClientIP()))
			response.Error(c, errors.ErrMaintenanceUnauthorized)
			c.Abort()
			return
		}

		if agent != "" && strings.HasPrefix(c.Request.UserAgent(), agent) {
			c.Next()
			return
		}

		if cfg.Development {
			c.Next()
			return
		}

		log.Warn("maintenance trigger rejected", zap.String("client_ip", c.ClientIP()))
		response.Error(c, errors.ErrMaintenanceUnauthorized)
		c.Abort()
	}
}
