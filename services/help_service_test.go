package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"preventanyl/models"
	"preventanyl/utils"
)

type fixedLocations struct {
	positions map[string]models.Position
}

func (f fixedLocations) CurrentPosition(_ context.Context, deviceID string) (models.Position, error) {
	if pos, ok := f.positions[deviceID]; ok {
		return pos, nil
	}
	return models.Position{}, utils.ErrLocationUnavailable
}

func (f fixedLocations) WatchPosition(context.Context, string, models.WatchOptions) (models.WatchHandle, <-chan models.PositionUpdate, error) {
	ch := make(chan models.PositionUpdate)
	close(ch)
	return 1, ch, nil
}

func (f fixedLocations) ClearWatch(models.WatchHandle) {}

func newTestHelpService(t *testing.T, dispatcher *fakeDispatcher) (*HelpService, *recordingMessenger, *fakeTimers, *fakeClock) {
	t.Helper()
	messenger := newRecordingMessenger()
	timers := &fakeTimers{}
	clock := newFakeClock()

	svc := NewHelpService(context.Background(), HelpServiceOptions{
		Config:     DefaultHelpWorkflowConfig(),
		Dispatcher: dispatcher,
		Locations: fixedLocations{positions: map[string]models.Position{
			"device-1": {Latitude: 49.26, Longitude: -123.11},
		}},
		Cooldowns: newMemoryCooldowns(),
		Messenger: messenger,
		Clock:     clock,
		NewTimer:  timers.New,
	})
	t.Cleanup(svc.Shutdown)
	return svc, messenger, timers, clock
}

func TestHelpService_RequestSendsPromptAndAttachesPosition(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, messenger, _, _ := newTestHelpService(t, dispatcher)
	ctx := context.Background()

	status, err := svc.RequestHelp(ctx, "device-1", "user-1", nil)
	if err != nil {
		t.Fatalf("RequestHelp() error = %v", err)
	}
	if status.State != models.HelpStateCounting || status.SecondsRemaining != 5 {
		t.Errorf("status = %+v", status)
	}

	msgs := messenger.Messages("device-1")
	if len(msgs) != 1 || msgs[0].Type != models.WSTypeHelpPrompt {
		t.Fatalf("messages = %+v, want one help_prompt", msgs)
	}
	prompt := msgs[0].Data.(models.WSHelpPrompt)
	if prompt.Action != models.PromptShow || prompt.Title != "Notify Angels" || prompt.ActionButtonText != "Notify Angels" {
		t.Errorf("prompt = %+v", prompt)
	}

	if _, err := svc.Confirm(ctx, "device-1"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	alert := dispatcher.calls[0]
	if alert.Position == nil || alert.Position.Latitude != 49.26 || alert.UserID != "user-1" {
		t.Errorf("alert = %+v, want stored position and user", alert)
	}

	last := messenger.Messages("device-1")
	if got := last[len(last)-1].Data.(models.WSHelpPrompt).Action; got != models.PromptDismiss {
		t.Errorf("last prompt action = %s, want dismiss", got)
	}
}

func TestHelpService_CooldownAlertsDevice(t *testing.T) {
	svc, messenger, _, _ := newTestHelpService(t, &fakeDispatcher{})
	ctx := context.Background()

	if _, err := svc.RequestHelp(ctx, "device-2", "", nil); err != nil {
		t.Fatalf("RequestHelp() error = %v", err)
	}
	if _, err := svc.Confirm(ctx, "device-2"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	_, err := svc.RequestHelp(ctx, "device-2", "", nil)
	if !errors.Is(err, utils.ErrCooldownActive) || !IsWorkflowError(err) {
		t.Fatalf("RequestHelp() error = %v, want cooldown", err)
	}

	msgs := messenger.Messages("device-2")
	alert := msgs[len(msgs)-1]
	if alert.Type != models.WSTypeAlert {
		t.Fatalf("last message = %s, want alert", alert.Type)
	}
	if got := alert.Data.(models.WSAlert).Message; got != "Please wait 10 minutes before asking for help again" {
		t.Errorf("alert = %q", got)
	}
}

func TestHelpService_DevicesAreIndependent(t *testing.T) {
	svc, _, timers, _ := newTestHelpService(t, &fakeDispatcher{})
	ctx := context.Background()

	if _, err := svc.RequestHelp(ctx, "a", "", nil); err != nil {
		t.Fatalf("RequestHelp(a) error = %v", err)
	}
	if _, err := svc.RequestHelp(ctx, "b", "", nil); err != nil {
		t.Fatalf("RequestHelp(b) error = %v", err)
	}
	if timers.Active() != 2 {
		t.Errorf("active timers = %d, want 2", timers.Active())
	}

	if _, cancelled := svc.Cancel("a"); !cancelled {
		t.Error("Cancel(a) = false")
	}
	if got := svc.Status("b").State; got != models.HelpStateCounting {
		t.Errorf("device b state = %s, want counting", got)
	}
}

func TestHelpService_ReleaseAndSweep(t *testing.T) {
	svc, _, _, clock := newTestHelpService(t, &fakeDispatcher{})
	ctx := context.Background()

	if _, err := svc.RequestHelp(ctx, "counting", "", nil); err != nil {
		t.Fatalf("RequestHelp() error = %v", err)
	}
	svc.Status("idle")

	svc.Release("counting")
	if svc.ActiveWorkflows() != 2 {
		t.Errorf("Release dropped a counting workflow")
	}
	svc.Release("idle")
	if svc.ActiveWorkflows() != 1 {
		t.Errorf("ActiveWorkflows() = %d, want 1", svc.ActiveWorkflows())
	}

	svc.Status("old")
	clock.Advance(2 * time.Hour)
	if removed := svc.SweepIdle(time.Hour); removed != 1 {
		t.Errorf("SweepIdle() = %d, want 1", removed)
	}
	if svc.ActiveWorkflows() != 1 {
		t.Errorf("SweepIdle removed the counting workflow")
	}
}

func TestHelpService_ReleasedWorkflowRefusesWork(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _, timers, _ := newTestHelpService(t, dispatcher)
	ctx := context.Background()

	// a handler looked the workflow up just before the last session closed
	stale := svc.workflow("device-1")
	svc.Release("device-1")

	if err := stale.RequestHelp(ctx, HelpRequest{}); !errors.Is(err, errWorkflowClosed) {
		t.Fatalf("RequestHelp() on released workflow error = %v, want errWorkflowClosed", err)
	}
	if _, err := stale.Confirm(ctx); !errors.Is(err, errWorkflowClosed) {
		t.Errorf("Confirm() on released workflow error = %v, want errWorkflowClosed", err)
	}
	if timers.Count() != 0 {
		t.Fatalf("released workflow started %d timers", timers.Count())
	}

	status, err := svc.RequestHelp(ctx, "device-1", "", nil)
	if err != nil {
		t.Fatalf("RequestHelp() error = %v", err)
	}
	if status.State != models.HelpStateCounting || timers.Active() != 1 {
		t.Fatalf("state = %s, active timers = %d", status.State, timers.Active())
	}

	if _, err := svc.Confirm(ctx, "device-1"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	for i := 0; i < timers.Count(); i++ {
		timers.Fire(i)
	}
	if dispatcher.Calls() != 1 {
		t.Errorf("dispatches = %d, want 1", dispatcher.Calls())
	}

	var cooldown *utils.CooldownError
	if _, err := svc.RequestHelp(ctx, "device-1", "", nil); !errors.As(err, &cooldown) {
		t.Errorf("RequestHelp() after dispatch error = %v, want cooldown", err)
	}
}

func TestHelpService_CancelFollowsReplacedWorkflow(t *testing.T) {
	svc, _, timers, _ := newTestHelpService(t, &fakeDispatcher{})
	ctx := context.Background()

	stale := svc.workflow("device-1")
	svc.Release("device-1")
	if stale.Cancel() {
		t.Fatal("Cancel() on idle released workflow = true")
	}

	if _, err := svc.RequestHelp(ctx, "device-1", "", nil); err != nil {
		t.Fatalf("RequestHelp() error = %v", err)
	}
	status, cancelled := svc.Cancel("device-1")
	if !cancelled || status.State != models.HelpStateIdle || timers.Active() != 0 {
		t.Errorf("Cancel() = %+v, %v; active timers = %d", status, cancelled, timers.Active())
	}
}

func TestHelpService_RequiresDevice(t *testing.T) {
	svc, _, _, _ := newTestHelpService(t, &fakeDispatcher{})

	if _, err := svc.RequestHelp(context.Background(), "", "", nil); err == nil {
		t.Error("RequestHelp() without device error = nil")
	}
	if _, err := svc.Confirm(context.Background(), ""); err == nil {
		t.Error("Confirm() without device error = nil")
	}
}
