package controllers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/utils"
	"preventanyl/websocket"
)

// TokenAuthenticator resolves an access token to its user.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type WebSocketController struct {
	hub  *websocket.Hub
	auth TokenAuthenticator
}

func NewWebSocketController(hub *websocket.Hub, auth TokenAuthenticator) *WebSocketController {
	return &WebSocketController{
		hub:  hub,
		auth: auth,
	}
}

// HandleWebSocket opens a map session for a device
// @Summary WebSocket endpoint
// @Description Map session: region, kit markers, user location and the help flow. A token is optional.
// @Tags WebSocket
// @Param deviceId query string true "Device ID"
// @Param token query string false "Access token"
// @Success 101 "Switching Protocols"
// @Failure 400 {object} models.APIResponse
// @Failure 401 {object} models.APIResponse
// @Router /ws [get]
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	deviceID := utils.NormalizeDeviceID(c.Query("deviceId"))
	if deviceID == "" {
		deviceID = utils.NormalizeDeviceID(c.GetHeader("X-Device-ID"))
	}
	if deviceID == "" {
		utils.BadRequestResponse(c, "deviceId is required")
		return
	}

	var userID string
	if token := c.Query("token"); token != "" && wsc.auth != nil {
		user, err := wsc.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			utils.HandleServiceError(c, err)
			return
		}
		userID = user.ID.Hex()
	}

	upgrader := wsc.hub.Upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logrus.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	client := websocket.NewClient(conn, wsc.hub, deviceID, userID, c.Request)
	if err := client.Start(); err != nil {
		logrus.Warnf("WebSocket session for %s refused: %v", deviceID, err)
	}
}

func (wsc *WebSocketController) Stats(c *gin.Context) {
	utils.SuccessResponse(c, "WebSocket statistics", gin.H{
		"hub":              wsc.hub.GetStats(),
		"connectedDevices": wsc.hub.GetConnectedDevices(),
	})
}
