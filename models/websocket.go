// models/websocket.go
package models

import (
	"encoding/json"
	"time"
)

// WebSocket Message Types
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	DeviceID  string      `json:"deviceId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

// WSRequest is an inbound client message. Data is decoded per Type.
type WSRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Server -> client
const (
	WSTypeRegion       = "region"
	WSTypeUserLocation = "user_location"
	WSTypeKits         = "kits"
	WSTypeLoading      = "loading"
	WSTypeAlert        = "alert"
	WSTypeHelpPrompt   = "help_prompt"
	WSTypeHelpStatus   = "help_status"
	WSTypeError        = "error"
	WSTypeSuccess      = "success"
	WSTypePong         = "pong"
)

// Client -> server
const (
	WSTypeLocationUpdate   = "location_update"
	WSTypeConnectionStatus = "connection_status"
	WSTypeFindMe           = "find_me"
	WSTypeHelpRequest      = "help_request"
	WSTypeHelpConfirm      = "help_confirm"
	WSTypeHelpCancel       = "help_cancel"
	WSTypePing             = "ping"
)

// Error codes
const (
	WSErrorInvalidMessage = "INVALID_MESSAGE"
	WSErrorRateLimit      = "RATE_LIMIT_EXCEEDED"
	WSErrorUnknownType    = "UNKNOWN_TYPE"
)

type PromptAction string

const (
	PromptShow    PromptAction = "show"
	PromptUpdate  PromptAction = "update"
	PromptDismiss PromptAction = "dismiss"
)

type WSHelpPrompt struct {
	Action           PromptAction `json:"action"`
	Title            string       `json:"title,omitempty"`
	Message          string       `json:"message,omitempty"`
	SecondsRemaining int          `json:"secondsRemaining"`
	ActionButtonText string       `json:"actionButtonText,omitempty"`
}

type WSAlert struct {
	Message string `json:"message"`
}

type WSLoading struct {
	Loading bool `json:"loading"`
}

type WSKits struct {
	Markers []KitMarker `json:"markers"`
}

type WSUserLocation struct {
	Coordinate  Coordinate `json:"coordinate"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type WSHubStats struct {
	ActiveConnections int       `json:"activeConnections"`
	TotalConnections  int64     `json:"totalConnections"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesDropped   int64     `json:"messagesDropped"`
	StartTime         time.Time `json:"startTime"`
}
