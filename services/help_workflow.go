package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

// TimerHandle stops a repeating timer.
type TimerHandle interface {
	Stop()
}

// TimerFactory starts a timer that calls tick every interval until stopped.
type TimerFactory func(interval time.Duration, tick func()) TimerHandle

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewTickerTimer is the production TimerFactory backed by time.Ticker.
func NewTickerTimer(interval time.Duration, tick func()) TimerHandle {
	t := &tickerTimer{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.ticker.C:
				tick()
			case <-t.done:
				return
			}
		}
	}()

	return t
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

type HelpWorkflowConfig struct {
	Cooldown         time.Duration
	CountdownSeconds int
	TickInterval     time.Duration
	DispatchTimeout  time.Duration
	Audience         models.Audience
	// InitialElapsed is how long ago the last success is assumed to be
	// when nothing was persisted for the device.
	InitialElapsed time.Duration
}

func DefaultHelpWorkflowConfig() HelpWorkflowConfig {
	return HelpWorkflowConfig{
		Cooldown:         10 * time.Minute,
		CountdownSeconds: 5,
		TickInterval:     time.Second,
		DispatchTimeout:  30 * time.Second,
		Audience:         models.AudienceAngels,
		InitialElapsed:   2 * time.Hour,
	}
}

type HelpWorkflowDeps struct {
	Dispatcher   interfaces.Dispatcher
	Connectivity interfaces.ConnectivityProvider
	Prompt       interfaces.ConfirmationPrompt
	Alerts       interfaces.AlertSurface
	Cooldowns    interfaces.CooldownStore // optional
	Clock        utils.Clock
	NewTimer     TimerFactory
}

// HelpRequest carries who is asking and, when known, where they are.
type HelpRequest struct {
	UserID   string
	Position *models.Position
}

// HelpWorkflow is the per-device help state machine:
// idle -> counting -> dispatching -> idle, and counting -> idle on cancel.
//
// At most one countdown timer is live. Every timer carries the generation it
// was started in; ticks from an older generation are ignored.
type HelpWorkflow struct {
	deviceID string
	config   HelpWorkflowConfig
	deps     HelpWorkflowDeps
	ctx      context.Context
	log      *logrus.Entry

	mu               sync.Mutex
	state            models.HelpState
	lastSuccess      time.Time
	secondsRemaining int
	message          string
	timer            TimerHandle
	generation       uint64
	request          HelpRequest
	lastActivity     time.Time
	closed           bool
}

// errWorkflowClosed is returned by a workflow that was dropped by its owner.
// Callers look the device up again.
var errWorkflowClosed = errors.New("help workflow closed")

// NewHelpWorkflow creates an idle workflow. ctx bounds timer-driven
// dispatches and must outlive the workflow.
func NewHelpWorkflow(ctx context.Context, deviceID string, config HelpWorkflowConfig, deps HelpWorkflowDeps) *HelpWorkflow {
	if deps.Clock == nil {
		deps.Clock = utils.SystemClock{}
	}
	if deps.NewTimer == nil {
		deps.NewTimer = NewTickerTimer
	}
	if config.CountdownSeconds < 0 {
		config.CountdownSeconds = 0
	}

	w := &HelpWorkflow{
		deviceID:         deviceID,
		config:           config,
		deps:             deps,
		ctx:              ctx,
		log:              logrus.WithField("deviceId", deviceID),
		state:            models.HelpStateIdle,
		secondsRemaining: config.CountdownSeconds,
		message:          utils.CountdownMessage(config.CountdownSeconds),
		lastSuccess:      deps.Clock.Now().Add(-config.InitialElapsed),
		lastActivity:     deps.Clock.Now(),
	}

	if deps.Cooldowns != nil {
		last, found, err := deps.Cooldowns.LastHelpSuccess(ctx, deviceID)
		if err != nil {
			w.log.Warnf("Failed to load help cooldown: %v", err)
		} else if found {
			w.lastSuccess = last
		}
	}

	return w
}

// RequestHelp starts the countdown after checking connectivity and cooldown.
// Neither failed check mutates any state.
func (w *HelpWorkflow) RequestHelp(ctx context.Context, req HelpRequest) error {
	conn := w.deps.Connectivity.ConnectionState(ctx)
	if !conn.Connected {
		w.alert(utils.NotifyAngelErrorMessage)
		return utils.ErrNetworkUnavailable
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWorkflowClosed
	}
	if w.state == models.HelpStateDispatching {
		return utils.ErrDispatchInProgress
	}

	if remaining := w.cooldownRemainingLocked(); remaining > 0 {
		w.alert(utils.CooldownMessage(remaining))
		return &utils.CooldownError{Remaining: remaining}
	}

	w.resetCountdownLocked()
	w.request = req
	w.state = models.HelpStateCounting
	w.lastActivity = w.deps.Clock.Now()

	w.generation++
	generation := w.generation
	w.timer = w.deps.NewTimer(w.config.TickInterval, func() {
		w.tick(generation)
	})

	w.prompt().Show(utils.NotifyTitle, w.message, w.secondsRemaining)
	w.log.Info("Help countdown started")
	return nil
}

// Tick advances the active countdown by one step. When the countdown is
// already at zero it dispatches instead.
func (w *HelpWorkflow) Tick() {
	w.mu.Lock()
	generation := w.generation
	w.mu.Unlock()

	w.tick(generation)
}

func (w *HelpWorkflow) tick(generation uint64) {
	w.mu.Lock()
	if w.state != models.HelpStateCounting || generation != w.generation {
		w.mu.Unlock()
		return
	}

	if w.secondsRemaining > 0 {
		w.secondsRemaining--
		w.message = utils.CountdownMessage(w.secondsRemaining)
		w.prompt().Update(w.message, w.secondsRemaining)
		w.mu.Unlock()
		return
	}

	alert := w.beginDispatchLocked()
	w.mu.Unlock()

	w.finishDispatch(w.ctx, alert)
}

// Confirm dispatches immediately, skipping the rest of the countdown.
func (w *HelpWorkflow) Confirm(ctx context.Context) (*models.DispatchResult, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, errWorkflowClosed
	}
	switch w.state {
	case models.HelpStateDispatching:
		w.mu.Unlock()
		return nil, utils.ErrDispatchInProgress
	case models.HelpStateIdle:
		w.mu.Unlock()
		return nil, utils.ErrNotCounting
	}

	alert := w.beginDispatchLocked()
	w.mu.Unlock()

	return w.finishDispatch(ctx, alert)
}

// Cancel stops a running countdown without dispatching. It reports whether
// a countdown was cancelled.
func (w *HelpWorkflow) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != models.HelpStateCounting {
		return false
	}

	w.resetCountdownLocked()
	w.state = models.HelpStateIdle
	w.lastActivity = w.deps.Clock.Now()
	w.prompt().Dismiss()
	w.log.Info("Help countdown cancelled")
	return true
}

// Close stops any timer. A running countdown is abandoned and later
// requests are refused.
func (w *HelpWorkflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.stopTimerLocked()
	if w.state == models.HelpStateCounting {
		w.state = models.HelpStateIdle
		w.secondsRemaining = w.config.CountdownSeconds
	}
}

func (w *HelpWorkflow) Status() models.HelpStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return models.HelpStatus{
		DeviceID:          w.deviceID,
		State:             w.state,
		SecondsRemaining:  w.secondsRemaining,
		Message:           w.message,
		LastSuccess:       w.lastSuccess,
		CooldownRemaining: w.cooldownRemainingLocked() * 60,
	}
}

// closeIfIdle closes the workflow when it is idle and has been since before
// cutoff. A zero cutoff only requires idleness.
func (w *HelpWorkflow) closeIfIdle(cutoff time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != models.HelpStateIdle {
		return false
	}
	if !cutoff.IsZero() && !w.lastActivity.Before(cutoff) {
		return false
	}
	w.closed = true
	return true
}

func (w *HelpWorkflow) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// cooldownRemainingLocked returns the remaining cooldown in hours, or zero
// when help may be requested.
func (w *HelpWorkflow) cooldownRemainingLocked() float64 {
	elapsed := utils.HoursSince(w.deps.Clock, w.lastSuccess)
	threshold := w.config.Cooldown.Hours()
	if elapsed >= threshold {
		return 0
	}
	return threshold - elapsed
}

func (w *HelpWorkflow) resetCountdownLocked() {
	w.stopTimerLocked()
	w.secondsRemaining = w.config.CountdownSeconds
	w.message = utils.CountdownMessage(w.secondsRemaining)
}

func (w *HelpWorkflow) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *HelpWorkflow) beginDispatchLocked() models.HelpAlert {
	w.resetCountdownLocked()
	w.state = models.HelpStateDispatching
	w.lastActivity = w.deps.Clock.Now()

	return models.HelpAlert{
		DeviceID:    w.deviceID,
		UserID:      w.request.UserID,
		Position:    w.request.Position,
		RequestedAt: w.deps.Clock.Now(),
	}
}

// finishDispatch calls the dispatcher outside the lock. Only a successful
// dispatch advances the cooldown.
func (w *HelpWorkflow) finishDispatch(ctx context.Context, alert models.HelpAlert) (*models.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if w.config.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.DispatchTimeout)
		defer cancel()
	}

	w.log.Info("Notifying angels")
	result, err := w.deps.Dispatcher.NotifyAll(ctx, w.config.Audience, alert)
	now := w.deps.Clock.Now()

	w.mu.Lock()
	w.state = models.HelpStateIdle
	w.lastActivity = now
	if err == nil {
		w.lastSuccess = now
	}
	w.prompt().Dismiss()
	w.mu.Unlock()

	if err != nil {
		w.log.WithError(err).Error("Failed to notify angels")
		return nil, fmt.Errorf("%w: %w", utils.ErrDispatchFailure, err)
	}

	if w.deps.Cooldowns != nil {
		if err := w.deps.Cooldowns.RecordHelpSuccess(ctx, w.deviceID, now); err != nil {
			w.log.Warnf("Failed to persist help cooldown: %v", err)
		}
	}

	w.log.WithField("channels", result.Channels).Info("Angels notified")
	return result, nil
}

func (w *HelpWorkflow) alert(message string) {
	if w.deps.Alerts != nil {
		w.deps.Alerts.Alert(message)
	}
}

func (w *HelpWorkflow) prompt() interfaces.ConfirmationPrompt {
	if w.deps.Prompt == nil {
		return noopPrompt{}
	}
	return w.deps.Prompt
}

type noopPrompt struct{}

func (noopPrompt) Show(string, string, int) {}
func (noopPrompt) Update(string, int)       {}
func (noopPrompt) Dismiss()                 {}
