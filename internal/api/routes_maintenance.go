package api

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/handlers"
)

func registerMaintenanceRoutes(api *gin.RouterGroup, handler *handlers.MaintenanceHandler, guard gin.HandlerFunc) {
	maintenance := api.Group("/maintenance")
	maintenance.Use(guard)
	{
		maintenance.GET("/cleanup-expired-markers", handler.Hourly)
		maintenance.POST("/cleanup-expired-markers", handler.Hourly)
		maintenance.GET("/daily-reset", handler.Daily)
		maintenance.POST("/daily-reset", handler.Daily)
	}
}
