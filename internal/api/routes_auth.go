package api

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/handlers"
)

type authRouteDeps struct {
	AuthHandler   *handlers.AuthHandler
	StreamHandler *handlers.StreamHandler
	RequireAuth   gin.HandlerFunc
	LoginLimit    gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.LoginLimit, deps.AuthHandler.Login)
		auth.POST("/force-login", deps.LoginLimit, deps.AuthHandler.ForceLogin)
		auth.GET("/session-status", deps.LoginLimit, deps.AuthHandler.SessionStatus)
	}

	protected := auth.Group("")
	protected.Use(deps.RequireAuth)
	{
		protected.GET("/me", deps.AuthHandler.Me)
		protected.POST("/logout", deps.AuthHandler.Logout)
		protected.GET("/stream", deps.StreamHandler.Stream)
	}
}
