package routes

import (
	"github.com/gin-gonic/gin"

	"preventanyl/controllers"
	"preventanyl/middleware"
)

// SetupHelpRoutes mounts the help flow. Anyone may ask for help; the
// device is identified by X-Device-ID and a token, when sent, is recorded.
func SetupHelpRoutes(router *gin.RouterGroup, helpController *controllers.HelpController, opts Options) {
	help := router.Group("/help")
	help.Use(middleware.RequireDevice(), opts.Auth.OptionalAuth())
	{
		help.POST("/request", middleware.HelpRateLimit(opts.Redis, opts.HelpRequestsPerMinute), helpController.RequestHelp)
		help.POST("/confirm", helpController.Confirm)
		help.POST("/cancel", helpController.Cancel)
		help.GET("/status", helpController.Status)
	}
}
