package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/services"
	"preventanyl/utils"
)

type KitController struct {
	kitService *services.KitService
}

func NewKitController(kitService *services.KitService) *KitController {
	return &KitController{
		kitService: kitService,
	}
}

// ListKits returns every kit with its map marker
// @Summary List kits
// @Description List kit locations. When lat/lng are given, markers carry directions from that point.
// @Tags Kits
// @Produce json
// @Param lat query number false "Origin latitude"
// @Param lng query number false "Origin longitude"
// @Success 200 {object} models.APIResponse
// @Router /kits [get]
func (kc *KitController) ListKits(c *gin.Context) {
	kits, err := kc.kitService.ListKits(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to list kits: %v", err)
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Kits retrieved successfully", gin.H{
		"kits":    kits,
		"markers": services.BuildKitMarkers(kits, originFromQuery(c)),
	})
}

// GetKit returns a single kit
// @Summary Get kit
// @Tags Kits
// @Produce json
// @Param kitId path string true "Kit ID"
// @Success 200 {object} models.APIResponse{data=models.Kit}
// @Failure 404 {object} models.APIResponse
// @Router /kits/{kitId} [get]
func (kc *KitController) GetKit(c *gin.Context) {
	kit, err := kc.kitService.GetKit(c.Request.Context(), c.Param("kitId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Kit retrieved successfully", kit)
}

// CreateKit records a new kit location
// @Summary Create kit
// @Tags Kits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateKitRequest true "Kit data"
// @Success 201 {object} models.APIResponse{data=models.Kit}
// @Failure 400 {object} models.APIResponse
// @Router /kits [post]
func (kc *KitController) CreateKit(c *gin.Context) {
	var req models.CreateKitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	kit, err := kc.kitService.CreateKit(c.Request.Context(), utils.GetUserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Kit created successfully", kit)
}

// UpdateKit changes a kit; only its creator or an admin may do so
// @Summary Update kit
// @Tags Kits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kitId path string true "Kit ID"
// @Param request body models.UpdateKitRequest true "Fields to change"
// @Success 200 {object} models.APIResponse{data=models.Kit}
// @Failure 403 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /kits/{kitId} [put]
func (kc *KitController) UpdateKit(c *gin.Context) {
	var req models.UpdateKitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	kit, err := kc.kitService.UpdateKit(c.Request.Context(), utils.GetUserID(c), c.GetString("userRole"), c.Param("kitId"), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Kit updated successfully", kit)
}

// DeleteKit removes a kit
// @Summary Delete kit
// @Tags Kits
// @Security BearerAuth
// @Param kitId path string true "Kit ID"
// @Success 200 {object} models.APIResponse
// @Failure 403 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /kits/{kitId} [delete]
func (kc *KitController) DeleteKit(c *gin.Context) {
	kitID := c.Param("kitId")
	if err := kc.kitService.DeleteKit(c.Request.Context(), utils.GetUserID(c), c.GetString("userRole"), kitID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Kit deleted successfully", gin.H{"id": kitID})
}

func originFromQuery(c *gin.Context) *models.Coordinate {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil || !utils.IsValidCoordinate(lat, lng) {
		return nil
	}
	return &models.Coordinate{Latitude: lat, Longitude: lng}
}
