package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
)

// HubConfig tunes connection handling.
type HubConfig struct {
	// MessagesPerSecond and Burst bound inbound messages per client.
	MessagesPerSecond float64
	Burst             int
	// IdleTimeout disconnects clients that have sent nothing for this long.
	IdleTimeout time.Duration
	// AllowedOrigins is matched against the Origin header; empty allows all.
	AllowedOrigins []string
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		MessagesPerSecond: 5,
		Burst:             20,
		IdleTimeout:       10 * time.Minute,
	}
}

// Hub tracks the websocket clients of every device and routes server
// messages to them. It implements interfaces.DeviceMessenger.
type Hub struct {
	// Registered clients, grouped by device
	devices map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	sessions interfaces.SessionFactory
	config   HubConfig

	stats *HubStats

	ctx    context.Context
	cancel context.CancelFunc

	cleanupTicker *time.Ticker
}

type HubStats struct {
	TotalConnections  int64
	ActiveConnections int
	MessagesSent      int64
	MessagesDropped   int64
	StartTime         time.Time
	mutex             sync.RWMutex
}

func NewHub(config HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		devices:    make(map[string]map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		config:     config,
		stats: &HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetSessionFactory wires the map sessions opened for each client. The
// factory depends on the hub as its messenger, so it is attached after
// construction and before Run.
func (h *Hub) SetSessionFactory(sessions interfaces.SessionFactory) {
	h.sessions = sessions
}

func (h *Hub) Run() {
	h.cleanupTicker = time.NewTicker(time.Minute)
	defer h.cleanupTicker.Stop()

	logrus.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			logrus.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.cleanupTicker.C:
			h.performCleanup()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	// a client that closed before its registration was processed stays out
	if client.isClosed() {
		return
	}

	h.mu.Lock()
	clients, ok := h.devices[client.deviceID]
	if !ok {
		clients = make(map[*Client]bool)
		h.devices[client.deviceID] = clients
	}
	clients[client] = true
	h.mu.Unlock()

	h.stats.mutex.Lock()
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	active := h.stats.ActiveConnections
	h.stats.mutex.Unlock()

	logrus.Infof("Client registered: device %s (Total: %d)", client.deviceID, active)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.devices[client.deviceID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.devices, client.deviceID)
	}
	h.mu.Unlock()

	h.stats.mutex.Lock()
	h.stats.ActiveConnections--
	active := h.stats.ActiveConnections
	h.stats.mutex.Unlock()

	logrus.Infof("Client unregistered: device %s (Total: %d)", client.deviceID, active)
}

// SendToDevice queues message on every client of deviceID. It reports
// whether at least one client accepted it.
func (h *Hub) SendToDevice(deviceID string, message models.WSMessage) bool {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	if message.DeviceID == "" {
		message.DeviceID = deviceID
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.devices[deviceID]))
	for client := range h.devices[deviceID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := false
	for _, client := range clients {
		if client.Send(message) {
			delivered = true
		}
	}
	return delivered
}

func (h *Hub) IsDeviceConnected(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices[deviceID]) > 0
}

func (h *Hub) GetConnectedDevices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]string, 0, len(h.devices))
	for deviceID := range h.devices {
		devices = append(devices, deviceID)
	}
	return devices
}

func (h *Hub) GetStats() models.WSHubStats {
	h.stats.mutex.RLock()
	defer h.stats.mutex.RUnlock()

	return models.WSHubStats{
		ActiveConnections: h.stats.ActiveConnections,
		TotalConnections:  h.stats.TotalConnections,
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		StartTime:         h.stats.StartTime,
	}
}

func (h *Hub) recordSend(ok bool) {
	h.stats.mutex.Lock()
	if ok {
		h.stats.MessagesSent++
	} else {
		h.stats.MessagesDropped++
	}
	h.stats.mutex.Unlock()
}

func (h *Hub) performCleanup() {
	if h.config.IdleTimeout <= 0 {
		return
	}

	h.mu.RLock()
	var idle []*Client
	for _, clients := range h.devices {
		for client := range clients {
			if time.Since(client.LastActivity()) > h.config.IdleTimeout {
				idle = append(idle, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		logrus.Infof("Closing idle client for device %s", client.deviceID)
		// Close unregisters through this loop
		go client.Close()
	}
}

func (h *Hub) Shutdown() {
	logrus.Info("Shutting down WebSocket hub...")

	h.mu.RLock()
	var clients []*Client
	for _, deviceClients := range h.devices {
		for client := range deviceClients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close()
	}

	h.cancel()
	logrus.Info("WebSocket hub shutdown complete")
}
