package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/services"
	"preventanyl/utils"
)

// DispatchHistory lists past help broadcasts.
type DispatchHistory interface {
	List(ctx context.Context, deviceID string, page, pageSize int) ([]models.HelpDispatch, int64, error)
}

// AngelCounter counts the active members of the help audience.
type AngelCounter interface {
	CountByRole(ctx context.Context, role string) (int64, error)
}

type HelpController struct {
	helpService *services.HelpService
	history     DispatchHistory
	angels      AngelCounter
}

func NewHelpController(helpService *services.HelpService, history DispatchHistory, angels AngelCounter) *HelpController {
	return &HelpController{
		helpService: helpService,
		history:     history,
		angels:      angels,
	}
}

// RequestHelp starts the "Notify Angels" countdown for the calling device
// @Summary Request help
// @Description Starts the cancellable countdown. Angels are notified when it reaches zero or on confirm.
// @Tags Help
// @Accept json
// @Produce json
// @Param X-Device-ID header string true "Device ID"
// @Param request body models.RequestHelpRequest false "Position to share"
// @Success 202 {object} models.APIResponse{data=models.HelpStatus}
// @Failure 429 {object} models.APIResponse
// @Failure 503 {object} models.APIResponse
// @Router /help/request [post]
func (hc *HelpController) RequestHelp(c *gin.Context) {
	var req models.RequestHelpRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// chunked uploads report ContentLength -1; an empty body decodes to io.EOF
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			utils.BadRequestResponse(c, "Invalid request body")
			return
		}
	}

	deviceID := utils.GetDeviceID(c)
	status, err := hc.helpService.RequestHelp(c.Request.Context(), deviceID, utils.GetUserID(c), req.Position(time.Now()))
	if err != nil {
		logrus.Infof("Help request from %s refused: %v", deviceID, err)
		utils.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.APIResponse{
		Success:   true,
		Message:   status.Message,
		Data:      status,
		Timestamp: time.Now(),
	})
}

// Confirm skips the remaining countdown and notifies angels now
// @Summary Confirm help request
// @Tags Help
// @Produce json
// @Param X-Device-ID header string true "Device ID"
// @Success 200 {object} models.APIResponse{data=models.DispatchResult}
// @Failure 409 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /help/confirm [post]
func (hc *HelpController) Confirm(c *gin.Context) {
	// the broadcast must not be abandoned if the caller hangs up
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := hc.helpService.Confirm(ctx, utils.GetDeviceID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.NotifyTitle, result)
}

// Cancel stops a running countdown
// @Summary Cancel help request
// @Tags Help
// @Produce json
// @Param X-Device-ID header string true "Device ID"
// @Success 200 {object} models.APIResponse{data=models.HelpStatus}
// @Router /help/cancel [post]
func (hc *HelpController) Cancel(c *gin.Context) {
	status, cancelled := hc.helpService.Cancel(utils.GetDeviceID(c))

	message := "No help request was pending"
	if cancelled {
		message = "Help request cancelled"
	}
	utils.SuccessResponse(c, message, status)
}

func (hc *HelpController) Status(c *gin.Context) {
	utils.SuccessResponse(c, "Help status retrieved", hc.helpService.Status(utils.GetDeviceID(c)))
}

// ListDispatches pages through the broadcast history, newest first.
func (hc *HelpController) ListDispatches(c *gin.Context) {
	if hc.history == nil {
		utils.ServiceUnavailableResponse(c, "Dispatch history")
		return
	}

	var req models.DispatchHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid query parameters")
		return
	}
	page := utils.ClampInt(req.Page, 1, 10000)
	pageSize := utils.ClampInt(req.PageSize, 1, 100)
	if req.PageSize == 0 {
		pageSize = 20
	}

	dispatches, total, err := hc.history.List(c.Request.Context(), req.DeviceID, page, pageSize)
	if err != nil {
		logrus.Errorf("Failed to list dispatches: %v", err)
		utils.HandleServiceError(c, utils.NewDatabaseError("list dispatches", err))
		return
	}

	utils.SuccessResponseWithMeta(c, "Dispatches retrieved successfully", dispatches, utils.CreatePaginationMeta(page, pageSize, total))
}

// CountAngels reports how many active accounts receive help broadcasts.
func (hc *HelpController) CountAngels(c *gin.Context) {
	if hc.angels == nil {
		utils.ServiceUnavailableResponse(c, "Angel directory")
		return
	}

	count, err := hc.angels.CountByRole(c.Request.Context(), models.RoleAngel)
	if err != nil {
		logrus.Errorf("Failed to count angels: %v", err)
		utils.HandleServiceError(c, utils.NewDatabaseError("count angels", err))
		return
	}

	utils.SuccessResponse(c, "Angels counted", gin.H{"angels": count})
}
