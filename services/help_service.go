package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

// HelpService keeps one HelpWorkflow per device and routes its prompt and
// alerts to the device's websocket sessions.
type HelpService struct {
	ctx          context.Context
	config       HelpWorkflowConfig
	dispatcher   interfaces.Dispatcher
	connectivity *ConnectivityService
	locations    interfaces.LocationProvider
	cooldowns    interfaces.CooldownStore
	messenger    interfaces.DeviceMessenger
	clock        utils.Clock
	newTimer     TimerFactory

	mu        sync.Mutex
	workflows map[string]*HelpWorkflow
}

type HelpServiceOptions struct {
	Config       HelpWorkflowConfig
	Dispatcher   interfaces.Dispatcher
	Connectivity *ConnectivityService
	Locations    interfaces.LocationProvider // optional, attaches positions to alerts
	Cooldowns    interfaces.CooldownStore    // optional
	Messenger    interfaces.DeviceMessenger  // optional
	Clock        utils.Clock
	NewTimer     TimerFactory
}

// NewHelpService creates the manager. ctx bounds countdown-driven dispatches
// and should live as long as the server.
func NewHelpService(ctx context.Context, opts HelpServiceOptions) *HelpService {
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock{}
	}
	if opts.NewTimer == nil {
		opts.NewTimer = NewTickerTimer
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = LogDispatcher{}
	}

	return &HelpService{
		ctx:          ctx,
		config:       opts.Config,
		dispatcher:   opts.Dispatcher,
		connectivity: opts.Connectivity,
		locations:    opts.Locations,
		cooldowns:    opts.Cooldowns,
		messenger:    opts.Messenger,
		clock:        opts.Clock,
		newTimer:     opts.NewTimer,
		workflows:    make(map[string]*HelpWorkflow),
	}
}

func (hs *HelpService) workflow(deviceID string) *HelpWorkflow {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if w, ok := hs.workflows[deviceID]; ok {
		return w
	}

	var connectivity interfaces.ConnectivityProvider = alwaysConnected{}
	if hs.connectivity != nil {
		connectivity = hs.connectivity.ForDevice(deviceID)
	}

	w := NewHelpWorkflow(hs.ctx, deviceID, hs.config, HelpWorkflowDeps{
		Dispatcher:   hs.dispatcher,
		Connectivity: connectivity,
		Prompt:       &devicePrompt{messenger: hs.messenger, deviceID: deviceID},
		Alerts:       &deviceAlerts{messenger: hs.messenger, deviceID: deviceID},
		Cooldowns:    hs.cooldowns,
		Clock:        hs.clock,
		NewTimer:     hs.newTimer,
	})
	hs.workflows[deviceID] = w
	return w
}

// RequestHelp starts the countdown for a device. When position is nil the
// last known device position, if any, is attached.
func (hs *HelpService) RequestHelp(ctx context.Context, deviceID, userID string, position *models.Position) (models.HelpStatus, error) {
	if deviceID == "" {
		return models.HelpStatus{}, utils.NewBadRequestError("Device ID is required")
	}

	if position == nil && hs.locations != nil {
		if pos, err := hs.locations.CurrentPosition(ctx, deviceID); err == nil {
			position = &pos
		}
	}

	for {
		w := hs.workflow(deviceID)
		err := w.RequestHelp(ctx, HelpRequest{UserID: userID, Position: position})
		if errors.Is(err, errWorkflowClosed) {
			continue
		}
		return w.Status(), err
	}
}

func (hs *HelpService) Confirm(ctx context.Context, deviceID string) (*models.DispatchResult, error) {
	if deviceID == "" {
		return nil, utils.NewBadRequestError("Device ID is required")
	}
	for {
		result, err := hs.workflow(deviceID).Confirm(ctx)
		if errors.Is(err, errWorkflowClosed) {
			continue
		}
		return result, err
	}
}

func (hs *HelpService) Cancel(deviceID string) (models.HelpStatus, bool) {
	for {
		w := hs.workflow(deviceID)
		cancelled := w.Cancel()
		if !cancelled && w.isClosed() {
			continue
		}
		return w.Status(), cancelled
	}
}

func (hs *HelpService) Status(deviceID string) models.HelpStatus {
	return hs.workflow(deviceID).Status()
}

// Release drops an idle device workflow, typically when its last session
// closes. A running countdown keeps the workflow alive.
func (hs *HelpService) Release(deviceID string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	w, ok := hs.workflows[deviceID]
	if !ok {
		return
	}
	if w.closeIfIdle(time.Time{}) {
		delete(hs.workflows, deviceID)
	}
}

// SweepIdle drops workflows idle for longer than maxIdle and returns how
// many were removed. Cooldowns survive in the CooldownStore.
func (hs *HelpService) SweepIdle(maxIdle time.Duration) int {
	cutoff := hs.clock.Now().Add(-maxIdle)

	hs.mu.Lock()
	defer hs.mu.Unlock()

	removed := 0
	for deviceID, w := range hs.workflows {
		if w.closeIfIdle(cutoff) {
			delete(hs.workflows, deviceID)
			removed++
		}
	}
	return removed
}

func (hs *HelpService) ActiveWorkflows() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.workflows)
}

// Shutdown stops every countdown.
func (hs *HelpService) Shutdown() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for deviceID, w := range hs.workflows {
		w.Close()
		delete(hs.workflows, deviceID)
	}
}

// IsWorkflowError reports whether err is an expected help workflow outcome
// that the device was already told about.
func IsWorkflowError(err error) bool {
	return errors.Is(err, utils.ErrNetworkUnavailable) ||
		errors.Is(err, utils.ErrCooldownActive)
}

type alwaysConnected struct{}

func (alwaysConnected) ConnectionState(context.Context) models.ConnectionState {
	return models.ConnectionState{Connected: true, Type: models.ConnectionUnknown}
}

// devicePrompt renders the confirmation prompt as help_prompt messages.
type devicePrompt struct {
	messenger interfaces.DeviceMessenger
	deviceID  string
}

func (dp *devicePrompt) Show(title, message string, secondsRemaining int) {
	dp.send(models.WSHelpPrompt{
		Action:           models.PromptShow,
		Title:            title,
		Message:          message,
		SecondsRemaining: secondsRemaining,
		ActionButtonText: utils.NotifyTitle,
	})
}

func (dp *devicePrompt) Update(message string, secondsRemaining int) {
	dp.send(models.WSHelpPrompt{
		Action:           models.PromptUpdate,
		Message:          message,
		SecondsRemaining: secondsRemaining,
	})
}

func (dp *devicePrompt) Dismiss() {
	dp.send(models.WSHelpPrompt{Action: models.PromptDismiss})
}

func (dp *devicePrompt) send(prompt models.WSHelpPrompt) {
	if dp.messenger == nil {
		return
	}
	dp.messenger.SendToDevice(dp.deviceID, models.WSMessage{
		Type:      models.WSTypeHelpPrompt,
		Data:      prompt,
		DeviceID:  dp.deviceID,
		Timestamp: time.Now(),
	})
}

type deviceAlerts struct {
	messenger interfaces.DeviceMessenger
	deviceID  string
}

func (da *deviceAlerts) Alert(message string) {
	if da.messenger == nil {
		logrus.WithField("deviceId", da.deviceID).Infof("Alert with no session attached: %s", message)
		return
	}
	da.messenger.SendToDevice(da.deviceID, models.WSMessage{
		Type:      models.WSTypeAlert,
		Data:      models.WSAlert{Message: message},
		DeviceID:  da.deviceID,
		Timestamp: time.Now(),
	})
}
