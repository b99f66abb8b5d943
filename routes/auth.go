package routes

import (
	"github.com/gin-gonic/gin"

	"preventanyl/controllers"
	"preventanyl/middleware"
)

// SetupAuthRoutes configures authentication, profile and angel routes
func SetupAuthRoutes(router *gin.RouterGroup, authController *controllers.AuthController, opts Options) {
	auth := router.Group("/auth")
	auth.Use(middleware.AuthRateLimit(opts.Redis))
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/refresh", authController.RefreshToken)
	}

	profile := router.Group("/profile")
	profile.Use(opts.Auth.RequireAuth())
	{
		profile.GET("", authController.GetProfile)
		profile.PUT("", authController.UpdateProfile)
	}

	angels := router.Group("/angels")
	angels.Use(opts.Auth.RequireAuth())
	{
		angels.POST("/subscription", authController.SubscribeAngel)
		angels.DELETE("/subscription", authController.UnsubscribeAngel)
	}
}
