package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
)

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

// NewServer builds the gin engine, mounts all routes and wraps it in an
// http.Server with the configured timeouts.
func NewServer(cfg config.ServerConfig, h *Handlers, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(requestLogMiddleware(logger.New("http")))
	engine.Use(corsMiddleware(cfg.CORSOrigins))
	engine.Use(rateLimitMiddleware(cfg.RateLimitRPS))

	engine.GET("/", h.Health)
	engine.GET("/models", h.Models)
	engine.POST("/analyze", h.Analyze)
	engine.POST("/autofix/generate", h.GeneratePatch)
	engine.POST("/autofix/apply", h.ApplyPatch)
	engine.GET("/api/v1/analyses", h.ListAnalyses)

	if registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: logger.New("server"),
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("listening", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}
