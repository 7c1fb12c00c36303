// Package api exposes the integration service over HTTP: message sending,
// aggregated integration status, sync metrics, health, and Prometheus
// scrape endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
	"github.com/taskstream/integration-service/pkg/observability"
)

// SyncService is the slice of the sync manager the API layer depends on.
type SyncService interface {
	SendMessage(ctx context.Context, name string, payload interface{}) error
	GetStatus() (map[string]models.IntegrationStatus, error)
	GetMetrics() map[string]models.SyncMetrics
}

// Server is the HTTP API server.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	sync    SyncService
	logger  observability.Logger
	metrics observability.MetricsClient
	cfg     config.APIConfig
}

// NewServer wires the router, middleware, and routes. The server does not
// listen until Start is called.
func NewServer(syncSvc SyncService, logger observability.Logger, metrics observability.MetricsClient, cfg config.APIConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logger.WithPrefix("api")))
	router.Use(MetricsMiddleware(metrics))
	if cfg.RateLimit > 0 {
		router.Use(RateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	s := &Server{
		router:  router,
		sync:    syncSvc,
		logger:  logger.WithPrefix("api"),
		metrics: metrics,
		cfg:     cfg,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/messages", s.sendMessage)
		v1.GET("/integrations/status", s.getStatus)
		v1.GET("/integrations/metrics", s.getMetrics)
	}
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called, mirroring http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"address": s.cfg.ListenAddress,
	})
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
