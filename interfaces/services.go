package interfaces

import (
	"context"
	"time"

	"preventanyl/models"
)

// Dispatcher broadcasts a help alert to an audience.
type Dispatcher interface {
	NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error)
}

// ConfirmationPrompt is the cancellable "Notify Angels" dialog on a device.
// Implementations must not block and must not call back into the workflow.
type ConfirmationPrompt interface {
	Show(title, message string, secondsRemaining int)
	Update(message string, secondsRemaining int)
	Dismiss()
}

// AlertSurface displays a modal message on a device.
type AlertSurface interface {
	Alert(message string)
}

// ConnectivityProvider reports the network state of one device.
type ConnectivityProvider interface {
	ConnectionState(ctx context.Context) models.ConnectionState
}

// CooldownStore persists the last successful help dispatch per device.
type CooldownStore interface {
	LastHelpSuccess(ctx context.Context, deviceID string) (time.Time, bool, error)
	RecordHelpSuccess(ctx context.Context, deviceID string, at time.Time) error
}

// LocationProvider yields one-shot and continuous device positions.
type LocationProvider interface {
	CurrentPosition(ctx context.Context, deviceID string) (models.Position, error)
	WatchPosition(ctx context.Context, deviceID string, opts models.WatchOptions) (models.WatchHandle, <-chan models.PositionUpdate, error)
	ClearWatch(handle models.WatchHandle)
}

// KitStore is the remote collection of kit records.
type KitStore interface {
	List(ctx context.Context) ([]models.Kit, error)
	Get(ctx context.Context, id string) (*models.Kit, error)
	Create(ctx context.Context, kit *models.Kit) error
	Update(ctx context.Context, kit *models.Kit) error
	Delete(ctx context.Context, id string) error
	// Watch emits the full kit list on every change until ctx is done.
	Watch(ctx context.Context, emit func([]models.Kit)) error
}

// DeviceMessenger delivers websocket messages to every session of a device.
type DeviceMessenger interface {
	SendToDevice(deviceID string, message models.WSMessage) bool
}

// SessionSink delivers messages to one websocket session.
type SessionSink interface {
	Send(message models.WSMessage) bool
}

// Session is one websocket connection's view of the map.
type Session interface {
	HandleMessage(ctx context.Context, request models.WSRequest) error
	Close()
}

// SessionFactory opens a Session for a newly connected device.
type SessionFactory interface {
	OpenSession(ctx context.Context, deviceID, userID string, sink SessionSink) (Session, error)
}
