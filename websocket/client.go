package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 256
)

// Upgrader builds the websocket upgrader for the hub's origin policy.
func (h *Hub) Upgrader() websocket.Upgrader {
	allowed := h.config.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			logrus.Debugf("Rejected WebSocket origin: %s", origin)
			return false
		},
	}
}

// Client is one websocket connection of a device. It implements
// interfaces.SessionSink for the map session it hosts.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	deviceID     string
	userID       string
	connectionID string
	connectedAt  time.Time
	ipAddress    string
	userAgent    string

	// Buffered channel of outbound messages
	send chan models.WSMessage

	session interfaces.Session
	limiter *rate.Limiter

	mu           sync.RWMutex
	closed       bool
	lastActivity time.Time
	closeOnce    sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(conn *websocket.Conn, hub *Hub, deviceID, userID string, r *http.Request) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)

	burst := hub.config.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if hub.config.MessagesPerSecond > 0 {
		limit = rate.Limit(hub.config.MessagesPerSecond)
	}

	client := &Client{
		conn:         conn,
		hub:          hub,
		deviceID:     deviceID,
		userID:       userID,
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		lastActivity: time.Now(),
		send:         make(chan models.WSMessage, sendBufferSize),
		limiter:      rate.NewLimiter(limit, burst),
		ctx:          ctx,
		cancel:       cancel,
	}
	if r != nil {
		client.ipAddress = getClientIP(r)
		client.userAgent = r.UserAgent()
	}
	return client
}

// Start opens the map session and runs the pumps. It returns once both
// pumps are running; the client closes itself when the peer goes away.
func (c *Client) Start() error {
	if c.hub.sessions != nil {
		// messages sent while mounting wait in the send buffer
		session, err := c.hub.sessions.OpenSession(c.ctx, c.deviceID, c.userID, c)
		if err != nil {
			serviceErr := utils.ToServiceError(err)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteJSON(models.WSMessage{
				Type:      models.WSTypeError,
				Data:      models.WSError{Code: serviceErr.Code, Message: serviceErr.Message},
				Timestamp: time.Now(),
			})
			c.Close()
			c.conn.Close()
			return err
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
	}

	c.hub.register <- c
	go c.WritePump()
	go c.ReadPump()

	logrus.Infof("Client connected: device %s (%s) from %s", c.deviceID, c.connectionID, c.ipAddress)
	return nil
}

func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error for device %s: %v", c.deviceID, err)
			}
			return
		}

		c.touch()

		if !c.limiter.Allow() {
			c.sendError(models.WSErrorRateLimit, "Rate limit exceeded", "")
			continue
		}

		c.handleMessage(messageData)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for device %s: %v", c.deviceID, err)
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.Warnf("Ping failed for device %s, disconnecting", c.deviceID)
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) handleMessage(messageData []byte) {
	var request models.WSRequest
	if err := json.Unmarshal(messageData, &request); err != nil || request.Type == "" {
		c.sendError(models.WSErrorInvalidMessage, "Invalid message format", "")
		return
	}

	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		if request.Type == models.WSTypePing {
			c.Send(models.WSMessage{Type: models.WSTypePong, RequestID: request.RequestID})
		}
		return
	}

	if err := session.HandleMessage(c.ctx, request); err != nil {
		serviceErr := utils.ToServiceError(err)
		if serviceErr.StatusCode >= http.StatusInternalServerError {
			logrus.Errorf("Message %s from device %s failed: %v", request.Type, c.deviceID, err)
		}
		c.sendError(serviceErr.Code, serviceErr.Message, request.RequestID)
	}
}

// Send queues message without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Send(message models.WSMessage) bool {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		c.hub.recordSend(true)
		return true
	default:
		logrus.Warnf("Send channel full for device %s", c.deviceID)
		c.hub.recordSend(false)
		return false
	}
}

func (c *Client) sendError(code, message, requestID string) {
	c.Send(models.WSMessage{
		Type:      models.WSTypeError,
		Data:      models.WSError{Code: code, Message: message},
		RequestID: requestID,
	})
}

// Close tears the client down once: the session is closed, the hub forgets
// the client and the connection is shut.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		session := c.session
		c.mu.Unlock()

		if session != nil {
			session.Close()
		}

		c.cancel()

		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}

		logrus.Infof("Client disconnected: device %s (%s)", c.deviceID, c.connectionID)
	})
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
