// Package httpserver exposes the audit pipeline's minimal HTTP surface:
// a liveness/readiness probe and the Prometheus scrape endpoint. No REST
// CRUD surface is served here; event ingestion goes through the queue,
// not an HTTP handler.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthaudit/audit-pipeline/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// Config controls the HTTP server's listen address and operating mode.
type Config struct {
	Addr        string
	ReleaseMode bool
}

// New builds an *http.Server serving /healthz and /metrics, backed by db
// for the liveness check.
func New(cfg Config, db *sqlx.DB, log *logger.Logger) *http.Server {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			log.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
