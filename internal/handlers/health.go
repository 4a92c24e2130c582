package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/cache"
	"github.com/learnhub/learnhub/internal/database"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/response"
)

const healthCheckTimeout = 3 * time.Second

// Health reports readiness of the session store and the shared cache.
func Health(db *gorm.DB, store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
		defer cancel()

		checks := gin.H{"database": "ok", "cache": "ok"}
		healthy := true
		if err := database.Ping(ctx, db); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			}
		} else {
			checks["cache"] = "disabled"
		}

		if !healthy {
			checks["status"] = "degraded"
			response.ErrorWithData(c, appErrors.ErrServiceUnavailable, checks)
			return
		}
		checks["status"] = "ok"
		response.Success(c, http.StatusOK, checks)
	}
}
