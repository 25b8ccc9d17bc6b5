// Package api provides the HTTP server for claude-bridge: routing, CORS and
// API-key middleware, and graceful shutdown. Handlers live in the handlers
// subpackages.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/yszxh/claude-bridge/internal/api/handlers"
	claudehandlers "github.com/yszxh/claude-bridge/internal/api/handlers/claude"
	oauthhandlers "github.com/yszxh/claude-bridge/internal/api/handlers/oauth"
	openaihandlers "github.com/yszxh/claude-bridge/internal/api/handlers/openai"
	"github.com/yszxh/claude-bridge/internal/config"
	"github.com/yszxh/claude-bridge/internal/logging"
)

// Server is the main API server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	base   *handlers.BaseAPIHandler
	cfg    atomic.Pointer[config.Config]
}

// NewServer creates and initializes the API server: gin engine, middleware,
// and routes.
func NewServer(cfg *config.Config, base *handlers.BaseAPIHandler) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.AccessLog())
	engine.Use(logging.Recovery())
	engine.Use(corsMiddleware())

	s := &Server{
		engine: engine,
		base:   base,
	}
	s.cfg.Store(cfg)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	return s
}

// setupRoutes configures the API routes for the server.
func (s *Server) setupRoutes() {
	claudeHandlers := claudehandlers.NewHandler(s.base)
	openaiHandlers := openaihandlers.NewHandler(s.base)
	oauthHandlers := oauthhandlers.NewHandler(s.base)

	v1 := s.engine.Group("/v1")
	v1.Use(s.authMiddleware())
	{
		v1.GET("/models", openaiHandlers.Models)
		v1.POST("/chat/completions", openaiHandlers.ChatCompletions)
		v1.POST("/messages", claudeHandlers.Messages)
		v1.POST("/:preset/messages", claudeHandlers.Messages)
	}

	authGroup := s.engine.Group("/auth")
	{
		authGroup.GET("/login", oauthHandlers.Login)
		authGroup.GET("/get-url", oauthHandlers.GetURL)
		authGroup.GET("/callback", oauthHandlers.Callback)
		authGroup.GET("/status", oauthHandlers.Status)
		authGroup.GET("/logout", oauthHandlers.Logout)
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// UpdateConfig swaps in a reloaded configuration. Only the dynamic settings
// (api keys, debug level) take effect without a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	log.Infof("server configuration updated: %d inbound api keys", len(cfg.APIKeys))
}

// Start begins listening for and serving HTTP requests. Blocking; returns
// only on an unrecoverable error.
func (s *Server) Start() error {
	log.Infof("starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the API server without interrupting any active
// connections.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// corsMiddleware adds permissive CORS headers to every response. OPTIONS on
// any path answers 200 with an empty body.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Api-Key, Anthropic-Version")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// authMiddleware authenticates inbound requests against the configured API
// keys. With no keys configured, all requests pass. When the X-Api-Key value
// matches a configured inbound key, the header is consumed here so it never
// doubles as an upstream credential; requests carrying a genuine explicit
// upstream credential pass through for the upstream to judge.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeys := s.cfg.Load().APIKeys
		if len(apiKeys) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		candidate := authHeader
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			candidate = parts[1]
		}
		headerKey := c.GetHeader("X-Api-Key")

		for _, key := range apiKeys {
			if candidate != "" && key == candidate {
				c.Next()
				return
			}
			if headerKey != "" && key == headerKey {
				c.Request.Header.Del("X-Api-Key")
				c.Next()
				return
			}
		}

		if handlers.ExplicitAPIKey(c) != "" {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{Message: "Invalid API key", Type: "authentication_error"},
		})
	}
}
