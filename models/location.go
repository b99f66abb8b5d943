package models

import "time"

// ==================== LOCATION MODELS ====================

type Coordinate struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Position is a device-reported location fix.
type Position struct {
	Latitude  float64   `json:"latitude" bson:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty" bson:"accuracy,omitempty"` // meters
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func (p Position) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PositionUpdate is one event of a position watch: either a fix or an error.
type PositionUpdate struct {
	Position Position
	Err      error
}

// WatchOptions mirrors the device geolocation watch options.
type WatchOptions struct {
	EnableHighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout            time.Duration `json:"timeout"`
	MaximumAge         time.Duration `json:"maximumAge"`
	DistanceFilter     float64       `json:"distanceFilter"` // meters
}

// DefaultWatchOptions are the options the map uses to follow the user.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		EnableHighAccuracy: true,
		Timeout:            20 * time.Second,
		MaximumAge:         time.Second,
		DistanceFilter:     10,
	}
}

// Region is the visible map area: a center and zoom deltas.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

const (
	UserRegionDelta    = 0.005
	DefaultRegionDelta = 0.2
	DefaultLatitude    = 49.246292
	DefaultLongitude   = -123.116226
)

// NewRegion centers a region on c with the given deltas.
func NewRegion(c Coordinate, latitudeDelta, longitudeDelta float64) Region {
	return Region{
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		LatitudeDelta:  latitudeDelta,
		LongitudeDelta: longitudeDelta,
	}
}

// UserRegion is the close-up region around the user.
func UserRegion(c Coordinate) Region {
	return NewRegion(c, UserRegionDelta, UserRegionDelta)
}

// DefaultRegion is shown when the device position is unknown.
func DefaultRegion() Region {
	return NewRegion(Coordinate{Latitude: DefaultLatitude, Longitude: DefaultLongitude}, DefaultRegionDelta, DefaultRegionDelta)
}

// ==================== CONNECTIVITY MODELS ====================

type ConnectionType string

const (
	ConnectionNone     ConnectionType = "none"
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionUnknown  ConnectionType = "unknown"
)

// ConnectionState is the network status last reported by a device.
type ConnectionState struct {
	Connected bool           `json:"connected"`
	Type      ConnectionType `json:"type"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ==================== REQUEST MODELS ====================

type UpdatePositionRequest struct {
	Latitude  float64    `json:"latitude" validate:"coordinate"`
	Longitude float64    `json:"longitude" validate:"coordinate"`
	Accuracy  float64    `json:"accuracy" validate:"gte=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type UpdateConnectionRequest struct {
	Connected bool           `json:"connected"`
	Type      ConnectionType `json:"type" validate:"omitempty,connection_type"`
}

// WatchHandle identifies an active position watch.
type WatchHandle uint64

// RegionResponse answers a "find me" request. Alert is set when the device
// could not be located and Region fell back to the default.
type RegionResponse struct {
	Region       Region      `json:"region"`
	UserLocation *Coordinate `json:"userLocation,omitempty"`
	Alert        string      `json:"alert,omitempty"`
}
