// Package serverless exposes the scraper as a single net/http function for
// hosts that invoke a Handler per request instead of running a server.
package serverless

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/trendscraper/api"
	"github.com/use-agent/trendscraper/config"
	"github.com/use-agent/trendscraper/service"
)

var (
	initOnce sync.Once
	router   *gin.Engine
	initErr  error
)

// Handler serves every route of the standalone server. The router is
// built once per warm instance; configuration problems still surface per
// request as CONFIGURATION_ERROR responses.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		cfg := config.Load()
		config.InitLogger(cfg.Log)

		svc, driver, err := service.FromConfig(cfg)
		if err != nil {
			initErr = err
			return
		}
		router = api.NewRouter(svc, cfg, driver.Name(), time.Now())
	})

	if initErr != nil {
		slog.Error("serverless init failed", "error", initErr)
		http.Error(w, initErr.Error(), http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}
