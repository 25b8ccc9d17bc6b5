// Package openai provides the OpenAI-compatible HTTP handlers: chat
// completions (buffered and streaming, translated both directions) and the
// models listing.
package openai

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/yszxh/claude-bridge/internal/api/handlers"
	"github.com/yszxh/claude-bridge/internal/constant"
	"github.com/yszxh/claude-bridge/internal/sse"
	"github.com/yszxh/claude-bridge/internal/translator"
)

// Handler serves the OpenAI-compatible endpoints.
type Handler struct {
	*handlers.BaseAPIHandler
}

// NewHandler creates the OpenAI-compatible handler.
func NewHandler(base *handlers.BaseAPIHandler) *Handler {
	return &Handler{BaseAPIHandler: base}
}

// ChatCompletions handles POST /v1/chat/completions. The request is
// translated to the native schema, dispatched upstream, and the response
// translated back, token by token when streaming.
func (h *Handler) ChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "invalid_request_error",
			fmt.Sprintf("Invalid request: %v", err))
		return
	}

	originalModel := gjson.GetBytes(rawJSON, "model").String()
	if originalModel == "" {
		originalModel = constant.DefaultModel
	}
	stream := gjson.GetBytes(rawJSON, "stream").Bool()
	requestID := "chatcmpl-" + uuid.NewString()

	nativeBody := translator.ToAnthropic(rawJSON, h.TranslatorOptions())

	resp, err := h.Upstream.Messages(c.Request.Context(), nativeBody, handlers.ExplicitAPIKey(c), stream)
	if err != nil {
		writeOpenAIDispatchError(c, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.Data(resp.StatusCode, "application/json", translator.ToOpenAIError(body, resp.StatusCode))
		return
	}

	if stream && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		h.streamResponse(c, resp, requestID, originalModel)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		handlers.WriteError(c, http.StatusBadGateway, "api_error",
			fmt.Sprintf("Failed to read upstream response: %v", err))
		return
	}
	c.Data(http.StatusOK, "application/json",
		translator.ToOpenAI(body, requestID, originalModel, time.Now().Unix()))
}

// streamResponse pipes the upstream native SSE stream through the transform,
// flushing each completed OpenAI chunk to the client. The stream always
// terminates with [DONE], even when the upstream fails mid-stream.
func (h *Handler) streamResponse(c *gin.Context, resp *http.Response, requestID, originalModel string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", "Streaming not supported")
		return
	}

	transformer := sse.NewStreamTransformer(requestID, originalModel, time.Now().Unix(), func(usage sse.Usage) {
		log.Debugf("stream %s finished: %d input tokens, %d output tokens",
			requestID, usage.InputTokens, usage.OutputTokens)
	})

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if out := transformer.Transform(buf[:n]); len(out) > 0 {
				if _, errWrite := c.Writer.Write(out); errWrite != nil {
					return
				}
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF && c.Request.Context().Err() == nil {
				log.Warnf("upstream stream ended with error: %v", err)
			}
			// Terminate the client-facing stream cleanly regardless of how
			// the upstream ended.
			_, _ = c.Writer.Write(transformer.Flush())
			flusher.Flush()
			return
		}
	}
}

func writeOpenAIDispatchError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	errType := "api_error"
	if isAuthError(err) {
		status = http.StatusUnauthorized
		errType = "invalid_request_error"
	}
	handlers.WriteError(c, status, errType, err.Error())
}
