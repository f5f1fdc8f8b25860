package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// RunStats is the part of service.Service the health handler needs.
type RunStats interface {
	ActiveSessions() int
	LastRun() *models.RunInfo
}

// Health returns a handler for GET /health.
//
// Reports degraded when every session slot is in use.
func Health(stats RunStats, engineName string, maxSessions int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := stats.ActiveSessions()

		status := "healthy"
		if maxSessions > 0 && active >= maxSessions {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			Engine:         engineName,
			ActiveSessions: active,
			MaxSessions:    maxSessions,
			LastRun:        stats.LastRun(),
			Version:        Version,
		})
	}
}

// Test is a liveness probe that never touches the browser or the store.
func Test(c *gin.Context) {
	c.JSON(http.StatusOK, models.TestResponse{
		Message: "API is working!",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
	})
}
