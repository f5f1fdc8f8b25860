package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/api/handler"
	"github.com/use-agent/trendscraper/api/middleware"
	"github.com/use-agent/trendscraper/config"
	"github.com/use-agent/trendscraper/service"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS (answers OPTIONS)
//	Scrape:  Auth (if keys configured) → RateLimit → SessionLimit
//
// Health and test endpoints are outside auth so monitoring probes always work.
func NewRouter(svc *service.Service, cfg *config.Config, engineName string, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		slog.Warn("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS())
	r.NoMethod(handler.MethodNotAllowed)

	r.GET("/health", handler.Health(svc, engineName, cfg.Limits.MaxSessions, startTime))
	r.GET("/api/test", handler.Test)

	scrape := r.Group("")
	scrape.Use(middleware.Auth(cfg.Auth.APIKeys))
	scrape.Use(middleware.RateLimit(cfg.Limits))
	scrape.Use(middleware.SessionLimit(cfg.Limits.MaxSessions))

	scrapeHandler := handler.Scrape(svc, cfg.Development())
	scrape.GET("/scrape", scrapeHandler)
	scrape.GET("/api/scrape", scrapeHandler)

	// Preflight routes; the CORS middleware writes the response.
	for _, path := range []string{"/scrape", "/api/scrape", "/api/test", "/health"} {
		r.OPTIONS(path, func(*gin.Context) {})
	}

	return r
}
