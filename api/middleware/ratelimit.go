package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/config"
	"github.com/use-agent/trendscraper/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

// clientLimiters holds one token bucket per caller identity.
type clientLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	*rate.Limiter
	used time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		buckets: make(map[string]*bucket),
	}
}

func (l *clientLimiters) allow(identity string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[identity] = b
	}
	b.used = now
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

// sweep drops buckets not used since cutoff and reports how many remain.
func (l *clientLimiters) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if b.used.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
	return len(l.buckets)
}

// RateLimit throttles scrape requests per API key, or per client IP when
// no key was presented. The IP is gin's ClientIP, so forwarding headers
// only count when they come from a trusted proxy. A non-positive rate
// disables limiting.
func RateLimit(cfg config.LimitsConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newClientLimiters(cfg.RequestsPerSecond, cfg.Burst)

	go func() {
		for now := range time.Tick(limiterSweepEvery) {
			limiters.sweep(now.Add(-limiterIdleTTL))
		}
	}()

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key := c.GetString("api_key"); key != "" {
			identity = "key:" + key
		}
		if !limiters.allow(identity, time.Now()) {
			abortJSON(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}
