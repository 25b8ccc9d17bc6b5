// Package handlers provides the shared base for the API endpoint handlers:
// dependency wiring, error responses, and credential extraction.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yszxh/claude-bridge/internal/auth"
	"github.com/yszxh/claude-bridge/internal/config"
	"github.com/yszxh/claude-bridge/internal/presets"
	"github.com/yszxh/claude-bridge/internal/translator"
	"github.com/yszxh/claude-bridge/internal/upstream"
)

// ErrorResponse is the JSON error envelope returned to clients.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail holds the specific error information.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// BaseAPIHandler carries the long-lived collaborators every endpoint needs.
// A single instance is constructed at startup and shared by all handlers.
type BaseAPIHandler struct {
	Cfg      *config.Config
	Tokens   *auth.Manager
	OAuth    *auth.AnthropicAuth
	Sessions *auth.SessionStore
	Upstream *upstream.Client
	Presets  *presets.Cache
}

// NewBaseAPIHandler wires the shared handler state.
func NewBaseAPIHandler(cfg *config.Config, tokens *auth.Manager, oauth *auth.AnthropicAuth, sessions *auth.SessionStore, up *upstream.Client, presetCache *presets.Cache) *BaseAPIHandler {
	return &BaseAPIHandler{
		Cfg:      cfg,
		Tokens:   tokens,
		OAuth:    oauth,
		Sessions: sessions,
		Upstream: up,
		Presets:  presetCache,
	}
}

// TranslatorOptions builds the conversion policy from the current config.
func (h *BaseAPIHandler) TranslatorOptions() translator.Options {
	return translator.Options{
		FilterSampling:   h.Cfg.FilterSampling(),
		PreferParam:      h.Cfg.PreferredSamplingParam(),
		CacheBreakpoints: h.Cfg.CacheBreakpoints,
	}
}

// ExplicitAPIKey extracts a caller-supplied upstream credential from the
// request. It takes precedence over the stored OAuth token for this request
// only. The proxy's own inbound api-keys are not upstream credentials: the
// auth middleware consumes an X-Api-Key matching a configured inbound key
// before handlers run, and of bearer tokens only Anthropic-shaped ones
// qualify.
func ExplicitAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-Api-Key"); key != "" {
		return key
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && strings.HasPrefix(parts[1], "sk-ant-") {
		return parts[1]
	}
	return ""
}

// WriteError sends a JSON error body with the given status.
func WriteError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// WriteAuthRequired reports that the proxy itself holds no usable upstream
// credentials.
func WriteAuthRequired(c *gin.Context) {
	WriteError(c, http.StatusUnauthorized, "authentication_error",
		"Not authenticated. Visit /auth/login to connect your Anthropic account.")
}
