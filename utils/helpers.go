package utils

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUserID retrieves the authenticated user ID stored as "userID" in context.
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("userID"); exists {
		if idStr, ok := userID.(string); ok {
			return idStr
		}
	}
	return ""
}

// GetDeviceID retrieves the device ID stored as "deviceID" in context.
func GetDeviceID(c *gin.Context) string {
	return c.GetString("deviceID")
}

// UUID Generation
func GenerateUUID() string {
	return uuid.New().String()
}

// NormalizeDeviceID trims and bounds a client supplied device identifier.
func NormalizeDeviceID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 128 {
		id = id[:128]
	}
	return id
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func RemoveStringFromSlice(slice []string, item string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if s != item {
			result = append(result, s)
		}
	}
	return result
}

func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func FormatDuration(duration time.Duration) string {
	return duration.Round(time.Second).String()
}
