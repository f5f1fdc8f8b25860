package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/api/middleware"
	"github.com/use-agent/trendscraper/models"
)

// TrendScraper is the part of service.Service the scrape handler needs.
type TrendScraper interface {
	Scrape(ctx context.Context, meta models.RequestMeta) (models.Record, error)
}

// Scrape returns a handler for GET /scrape.
//
// Orchestration flow:
//  1. Capture request metadata (client IP, user agent, access time).
//  2. Service.Scrape → validate config, run the sequence, persist.
//  3. 200 with the persisted record, or 500 with the error envelope.
//
// The request context is passed through, so a client disconnect aborts
// the run at its next wait.
func Scrape(svc TrendScraper, includeDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := models.RequestMeta{
			ClientIP:        middleware.ClientIP(c.Request),
			UserAgent:       c.GetHeader("User-Agent"),
			AccessTimestamp: time.Now(),
		}

		rec, err := svc.Scrape(c.Request.Context(), meta)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.NewErrorResponse(err, includeDetails, time.Now()))
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{
		Status:    "error",
		Code:      models.ErrCodeMethodNotAllowed,
		Stage:     models.StageRequest,
		Error:     "method " + c.Request.Method + " not allowed",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
