package api

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/handlers"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/models"
)

type adminRouteDeps struct {
	Sessions    *handlers.AdminSessionHandler
	Audit       *handlers.AuditHandler
	RequireAuth gin.HandlerFunc
}

func registerAdminRoutes(api *gin.RouterGroup, deps adminRouteDeps) {
	admin := api.Group("/admin")
	admin.Use(deps.RequireAuth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/sessions", deps.Sessions.ListActive)
		admin.POST("/users/:id/sessions/end", deps.Sessions.End)
		admin.GET("/audit", deps.Audit.List)
	}
}
