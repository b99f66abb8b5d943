package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Logger         *logrus.Logger
	SkipPaths      []string
	SkipUserAgents []string
	// SlowRequest marks requests above this latency as warnings.
	SlowRequest time.Duration
}

// LoggerMiddleware writes one structured line per request. Websocket
// upgrades are logged when the connection ends, so their latency is the
// session length.
func LoggerMiddleware(config LoggerConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.SlowRequest == 0 {
		config.SlowRequest = 5 * time.Second
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		if hasPrefix(c.Request.URL.Path, config.SkipPaths) || containsAny(c.Request.UserAgent(), config.SkipUserAgents) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fields := logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": float64(duration.Nanoseconds()) / 1e6,
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if userID := c.GetString("userID"); userID != "" {
			fields["user_id"] = userID
		}
		if deviceID := c.GetString("deviceID"); deviceID != "" {
			fields["device_id"] = deviceID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		status := c.Writer.Status()
		message := fmt.Sprintf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, duration)
		entry := config.Logger.WithFields(fields)

		switch {
		case status >= 500:
			entry.Error(message)
		case status >= 400:
			entry.Warn(message)
		case duration > config.SlowRequest && !isUpgrade(c):
			entry.Warn(message + " (slow request)")
		default:
			entry.Info(message)
		}
	}
}

// DefaultLoggerMiddleware skips health checks.
func DefaultLoggerMiddleware() gin.HandlerFunc {
	return LoggerMiddleware(LoggerConfig{
		Logger:    logrus.StandardLogger(),
		SkipPaths: []string{"/health", "/favicon.ico"},
		SkipUserAgents: []string{
			"kube-probe",
			"GoogleHC",
		},
	})
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
