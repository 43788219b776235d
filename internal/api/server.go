// Package api provides the HTTP API server implementation for LingoRelay.
// It includes the main server struct, routing setup, middleware for CORS and
// authentication, and integration with the OpenAI-compatible handlers. The
// server supports hot-reloading of configuration.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/lingorelay/lingorelay/internal/api/handlers"
	"github.com/lingorelay/lingorelay/internal/api/handlers/openai"
	"github.com/lingorelay/lingorelay/internal/api/middleware"
	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/lingorelay/lingorelay/internal/logging"
	"github.com/lingorelay/lingorelay/internal/metrics"
	"github.com/lingorelay/lingorelay/internal/registry"
	log "github.com/sirupsen/logrus"
)

// Server represents the main API server. It encapsulates the Gin engine,
// the HTTP server, the shared handlers, and the current configuration.
type Server struct {
	engine   *gin.Engine
	server   *http.Server
	handlers *handlers.BaseAPIHandler

	mu  sync.RWMutex
	cfg *config.Config
}

// NewServer creates a new API server instance around the shared handlers.
func NewServer(cfg *config.Config, apiHandlers *handlers.BaseAPIHandler) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.PrometheusMiddleware())

	s := &Server{
		engine:   engine,
		handlers: apiHandlers,
		cfg:      cfg,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: engine,
		},
	}

	engine.Use(s.corsMiddleware())
	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes: health and metrics at the root,
// the OpenAI-compatible surface under /v1 behind key authentication.
func (s *Server) setupRoutes() {
	openaiHandlers := openai.NewOpenAIAPIHandler(s.handlers)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", middleware.MetricsHandler())

	v1 := s.engine.Group("/v1")
	v1.Use(s.authMiddleware())
	v1.GET("/models", openaiHandlers.Models)
	v1.POST("/chat/completions", openaiHandlers.ChatCompletions)
}

// authMiddleware validates the bearer key against the configured API keys.
// An empty key list disables authentication.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := s.getConfig().APIKeys
		if len(keys) == 0 {
			c.Next()
			return
		}
		provided := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
		if provided == "" {
			provided = strings.TrimSpace(c.GetHeader("X-Api-Key"))
		}
		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Invalid API key",
				Type:    "authentication_error",
				Code:    "invalid_api_key",
			},
		})
	}
}

// corsMiddleware adds permissive CORS headers and answers preflight
// requests directly.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key, X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) getConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ApplyConfig installs a reloaded configuration: handler collaborators are
// rebuilt, the model registry reseeded, and the log level updated. The
// listen port cannot change without a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	s.handlers.UpdateConfig(cfg)
	registry.GetGlobalRegistry().SetModels(cfg.Models)
	logging.SetLevelFromName(cfg.LoggingLevel)
	logging.SetRequestLogEnabled(cfg.RequestLog)
	logging.SetVerboseEnabled(cfg.VerboseLogging)
	metrics.SetEnabled(cfg.Metrics)

	if old != nil && old.Port != cfg.Port {
		log.WithFields(log.Fields{
			"old_port": old.Port,
			"new_port": cfg.Port,
		}).Warn("server: port change requires a restart to take effect")
	}
	log.Info("server: configuration reloaded")
}

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	log.WithField("addr", s.server.Addr).Info("server: listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up
// to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
