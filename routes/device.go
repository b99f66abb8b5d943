package routes

import (
	"github.com/gin-gonic/gin"

	"preventanyl/controllers"
	"preventanyl/middleware"
)

func SetupDeviceRoutes(router *gin.RouterGroup, deviceController *controllers.DeviceController) {
	devices := router.Group("/devices")
	devices.Use(middleware.RequireDevice())
	{
		devices.PUT("/connection", deviceController.UpdateConnection)
		devices.POST("/location", deviceController.UpdateLocation)
		devices.GET("/location", deviceController.GetLocation)
		devices.GET("/region", deviceController.GetRegion)
	}
}
