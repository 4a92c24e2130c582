package api

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/app"
	"github.com/learnhub/learnhub/internal/handlers"
	"github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/response"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, deps Dependencies) {
	handler := disabledHealthHandler
	if cfg.Monitoring.Health.Enabled {
		handler = handlers.Health(deps.DB, deps.Cache)
	}
	r.GET("/health", handler)
	r.GET("/api/health", handler)
}

func disabledHealthHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
