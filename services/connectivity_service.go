package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/repositories"
	"preventanyl/utils"
)

// ConnectivityService tracks the network state devices report about
// themselves. A device that never reported, or whose report expired, is
// assumed to be connected: it reached us after all.
type ConnectivityService struct {
	deviceRepo *repositories.DeviceRepository
	clock      utils.Clock
	validator  *utils.ValidationService
}

func NewConnectivityService(deviceRepo *repositories.DeviceRepository, clock utils.Clock) *ConnectivityService {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ConnectivityService{
		deviceRepo: deviceRepo,
		clock:      clock,
		validator:  utils.NewValidationService(),
	}
}

func (cs *ConnectivityService) Update(ctx context.Context, deviceID string, req models.UpdateConnectionRequest) (*models.ConnectionState, error) {
	if deviceID == "" {
		return nil, utils.NewBadRequestError("Device ID is required")
	}
	if errs := cs.validator.ValidateStruct(req); len(errs) > 0 {
		return nil, utils.NewBadRequestError(errs[0].Message)
	}

	connType := req.Type
	if connType == "" {
		connType = models.ConnectionUnknown
	}

	state := models.ConnectionState{
		Connected: req.Connected && connType != models.ConnectionNone,
		Type:      connType,
		UpdatedAt: cs.clock.Now(),
	}
	if !state.Connected {
		state.Type = models.ConnectionNone
	}

	if err := cs.deviceRepo.SaveConnection(ctx, deviceID, state); err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "Failed to store connection state", err)
	}

	logrus.WithFields(logrus.Fields{
		"deviceId":  deviceID,
		"connected": state.Connected,
		"type":      state.Type,
	}).Debug("Connection state updated")

	return &state, nil
}

// StateFor returns the device's connection state. Lookup failures fall back
// to "connected" so a Redis hiccup never blocks a help request.
func (cs *ConnectivityService) StateFor(ctx context.Context, deviceID string) models.ConnectionState {
	state, found, err := cs.deviceRepo.GetConnection(ctx, deviceID)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.Warnf("Failed to read connection state for %s: %v", deviceID, err)
	}
	if err != nil || !found {
		return models.ConnectionState{Connected: true, Type: models.ConnectionUnknown, UpdatedAt: cs.clock.Now()}
	}
	return state
}

// ForDevice binds the service to one device for the help workflow.
func (cs *ConnectivityService) ForDevice(deviceID string) interfaces.ConnectivityProvider {
	return deviceConnectivity{service: cs, deviceID: deviceID}
}

type deviceConnectivity struct {
	service  *ConnectivityService
	deviceID string
}

func (dc deviceConnectivity) ConnectionState(ctx context.Context) models.ConnectionState {
	return dc.service.StateFor(ctx, dc.deviceID)
}
