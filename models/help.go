package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ==================== HELP REQUEST MODELS ====================

// Audience is a push topic that receives help broadcasts.
type Audience string

const AudienceAngels Audience = "angels"

type HelpState string

const (
	HelpStateIdle        HelpState = "idle"
	HelpStateCounting    HelpState = "counting"
	HelpStateDispatching HelpState = "dispatching"
)

// HelpStatus is a snapshot of one device's help workflow.
type HelpStatus struct {
	DeviceID          string    `json:"deviceId"`
	State             HelpState `json:"state"`
	SecondsRemaining  int       `json:"secondsRemaining"`
	Message           string    `json:"message"`
	LastSuccess       time.Time `json:"lastSuccess"`
	CooldownRemaining float64   `json:"cooldownRemainingMinutes"`
}

// HelpAlert is the payload broadcast to the audience.
type HelpAlert struct {
	DeviceID    string    `json:"deviceId"`
	UserID      string    `json:"userId,omitempty"`
	Position    *Position `json:"position,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// DispatchResult describes one successful broadcast.
type DispatchResult struct {
	Channels   []string  `json:"channels"`
	MessageIDs []string  `json:"messageIds,omitempty"`
	Delivered  int       `json:"delivered"`
	SentAt     time.Time `json:"sentAt"`
}

// HelpDispatch is the persisted record of a dispatch attempt.
type HelpDispatch struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DeviceID    string             `json:"deviceId" bson:"deviceId"`
	UserID      string             `json:"userId,omitempty" bson:"userId,omitempty"`
	Audience    Audience           `json:"audience" bson:"audience"`
	Position    *Position          `json:"position,omitempty" bson:"position,omitempty"`
	Channels    []string           `json:"channels" bson:"channels"`
	MessageIDs  []string           `json:"messageIds,omitempty" bson:"messageIds,omitempty"`
	Success     bool               `json:"success" bson:"success"`
	Error       string             `json:"error,omitempty" bson:"error,omitempty"`
	RequestedAt time.Time          `json:"requestedAt" bson:"requestedAt"`
	CompletedAt time.Time          `json:"completedAt" bson:"completedAt"`
}

// ==================== REQUEST MODELS ====================

// RequestHelpRequest optionally carries the position to share with angels.
type RequestHelpRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,coordinate"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,coordinate"`
}

type DispatchHistoryRequest struct {
	DeviceID string `form:"deviceId"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// Position returns the coordinates supplied with the request, or nil when
// they are missing or out of range.
func (r RequestHelpRequest) Position(at time.Time) *Position {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	lat, lng := *r.Latitude, *r.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &Position{Latitude: lat, Longitude: lng, Timestamp: at}
}
