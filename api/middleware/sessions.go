package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/models"
	"golang.org/x/sync/semaphore"
)

// SessionLimit caps how many requests may hold a browser session at once.
// Requests over the cap are rejected immediately with 503 rather than
// queued. max <= 0 disables the cap.
func SessionLimit(max int) gin.HandlerFunc {
	if max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	sem := semaphore.NewWeighted(int64(max))

	return func(c *gin.Context) {
		if !sem.TryAcquire(1) {
			abortJSON(c, http.StatusServiceUnavailable, models.ErrCodeTooManySessions,
				"too many concurrent scrapes, retry later")
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
