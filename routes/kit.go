package routes

import (
	"github.com/gin-gonic/gin"

	"preventanyl/controllers"
)

// SetupKitRoutes exposes the kit map publicly; changes need an account.
func SetupKitRoutes(router *gin.RouterGroup, kitController *controllers.KitController, opts Options) {
	kits := router.Group("/kits")
	{
		kits.GET("", kitController.ListKits)
		kits.GET("/:kitId", kitController.GetKit)

		protected := kits.Group("")
		protected.Use(opts.Auth.RequireAuth())
		protected.POST("", kitController.CreateKit)
		protected.PUT("/:kitId", kitController.UpdateKit)
		protected.DELETE("/:kitId", kitController.DeleteKit)
	}
}
