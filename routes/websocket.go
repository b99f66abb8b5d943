package routes

import (
	"github.com/gin-gonic/gin"

	"preventanyl/controllers"
)

// SetupWebSocketRoutes mounts the map session endpoint. Authentication is
// optional and handled by the controller from the token query parameter.
func SetupWebSocketRoutes(router *gin.Engine, wsController *controllers.WebSocketController) {
	router.GET("/ws", wsController.HandleWebSocket)
}
