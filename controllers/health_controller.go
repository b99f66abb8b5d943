package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/utils"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type HealthController struct {
	checks    map[string]HealthCheck
	version   string
	startTime time.Time
	stats     func() interface{}
}

// NewHealthController reports on checks. stats, when set, adds live
// counters under "stats".
func NewHealthController(version string, checks map[string]HealthCheck, stats func() interface{}) *HealthController {
	return &HealthController{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
		stats:     stats,
	}
}

func (hc *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := make(map[string]string, len(hc.checks))
	for name, check := range hc.checks {
		if err := check(ctx); err != nil {
			logrus.Warnf("Health check %s failed: %v", name, err)
			services[name] = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	response := utils.HealthCheckResponse(services, hc.version, utils.FormatDuration(time.Since(hc.startTime)))
	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":    response.Status,
		"timestamp": response.Timestamp,
		"services":  response.Services,
		"version":   response.Version,
		"uptime":    response.Uptime,
	}
	if hc.stats != nil {
		body["stats"] = hc.stats()
	}
	c.JSON(status, body)
}
