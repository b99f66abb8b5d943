package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"preventanyl/models"
	"preventanyl/services"
	"preventanyl/utils"
)

// DeviceController accepts the position and network reports a device makes
// and answers "find me".
type DeviceController struct {
	locationService     *services.LocationService
	connectivityService *services.ConnectivityService
}

func NewDeviceController(locationService *services.LocationService, connectivityService *services.ConnectivityService) *DeviceController {
	return &DeviceController{
		locationService:     locationService,
		connectivityService: connectivityService,
	}
}

func (dc *DeviceController) UpdateConnection(c *gin.Context) {
	var req models.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	state, err := dc.connectivityService.Update(c.Request.Context(), utils.GetDeviceID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Connection state updated", state)
}

func (dc *DeviceController) UpdateLocation(c *gin.Context) {
	var req models.UpdatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	position, err := dc.locationService.UpdatePosition(c.Request.Context(), utils.GetDeviceID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Location updated", position)
}

func (dc *DeviceController) GetLocation(c *gin.Context) {
	position, err := dc.locationService.CurrentPosition(c.Request.Context(), utils.GetDeviceID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Location retrieved", position)
}

// GetRegion centers the map on the device, falling back to the default
// region with an alert when no fresh position is known.
func (dc *DeviceController) GetRegion(c *gin.Context) {
	position, err := dc.locationService.CurrentPosition(c.Request.Context(), utils.GetDeviceID(c))
	if err != nil {
		if !errors.Is(err, utils.ErrLocationUnavailable) {
			utils.HandleServiceError(c, err)
			return
		}
		utils.SuccessResponse(c, utils.FindUserErrorMessage, models.RegionResponse{
			Region: models.DefaultRegion(),
			Alert:  utils.FindUserErrorMessage,
		})
		return
	}

	coordinate := position.Coordinate()
	utils.SuccessResponse(c, "Region retrieved", models.RegionResponse{
		Region:       models.UserRegion(coordinate),
		UserLocation: &coordinate,
	})
}
