// Package claude provides the native-protocol HTTP handlers: Messages API
// passthrough with system-prefix enforcement, preset application, and
// streamed or buffered response delivery.
package claude

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/yszxh/claude-bridge/internal/api/handlers"
	"github.com/yszxh/claude-bridge/internal/auth"
	"github.com/yszxh/claude-bridge/internal/translator"
)

// Handler serves the native-protocol endpoints.
type Handler struct {
	*handlers.BaseAPIHandler
}

// NewHandler creates the native-protocol handler.
func NewHandler(base *handlers.BaseAPIHandler) *Handler {
	return &Handler{BaseAPIHandler: base}
}

// Messages handles POST /v1/messages and POST /v1/:preset/messages. The body
// is forwarded to the upstream Messages API after the outbound invariants are
// enforced; the response mirrors the upstream status and is streamed through
// when the upstream streams.
func (h *Handler) Messages(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "invalid_request_error",
			fmt.Sprintf("Invalid request: %v", err))
		return
	}

	if presetName := c.Param("preset"); presetName != "" {
		preset, errPreset := h.Presets.Get(presetName)
		if errPreset != nil {
			handlers.WriteError(c, http.StatusNotFound, "invalid_request_error",
				fmt.Sprintf("Unknown preset %q", presetName))
			return
		}
		rawJSON = preset.Apply(rawJSON)
	}

	rawJSON = translator.PrepareNative(rawJSON, h.TranslatorOptions())
	stream := gjson.GetBytes(rawJSON, "stream").Bool()

	resp, err := h.Upstream.Messages(c.Request.Context(), rawJSON, handlers.ExplicitAPIKey(c), stream)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if isEventStream(resp) {
		pipeStream(c, resp)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		handlers.WriteError(c, http.StatusBadGateway, "api_error",
			fmt.Sprintf("Failed to read upstream response: %v", err))
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// writeDispatchError maps dispatch failures onto client-facing JSON errors.
func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrNoRefreshToken):
		handlers.WriteAuthRequired(c)
	default:
		var exchangeErr *auth.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			handlers.WriteError(c, http.StatusUnauthorized, "authentication_error", exchangeErr.Error())
			return
		}
		handlers.WriteError(c, http.StatusBadGateway, "api_error", err.Error())
	}
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// pipeStream forwards upstream SSE bytes to the client as they arrive. The
// upstream request shares the inbound request context, so a client disconnect
// tears the upstream connection down with it.
func pipeStream(c *gin.Context, resp *http.Response) {
	c.Status(resp.StatusCode)
	c.Header("Content-Type", resp.Header.Get("Content-Type"))
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", "Streaming not supported")
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, errWrite := c.Writer.Write(buf[:n]); errWrite != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && c.Request.Context().Err() == nil {
				log.Warnf("upstream stream ended with error: %v", err)
			}
			return
		}
	}
}
