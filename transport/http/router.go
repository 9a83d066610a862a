package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prizepool/warden/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, secureCookies bool, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(logger))

	handlers := NewAuthHandlers(authService, secureCookies, logger)

	router.GET("/healthz", handlers.Health)

	auth := router.Group("/auth")
	{
		auth.GET("/nonce", handlers.Nonce)
		auth.POST("/verify", handlers.Verify)
		auth.GET("/session", handlers.Session)
		auth.POST("/session", handlers.CreateSession)
		auth.PUT("/session", handlers.UpdateSession)
		auth.DELETE("/session", handlers.DeleteSession)
	}

	return router
}
