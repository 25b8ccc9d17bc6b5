package openai

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yszxh/claude-bridge/internal/api/handlers"
	"github.com/yszxh/claude-bridge/internal/auth"
)

// Models handles GET /v1/models. The list is fetched live from the upstream,
// with a static fallback when that fails.
func (h *Handler) Models(c *gin.Context) {
	ids := h.Upstream.ListModelIDs(c.Request.Context(), handlers.ExplicitAPIKey(c))

	created := time.Now().Unix()
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  created,
			"owned_by": "anthropic",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}

func isAuthError(err error) bool {
	if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrNoRefreshToken) {
		return true
	}
	var exchangeErr *auth.TokenExchangeError
	return errors.As(err, &exchangeErr)
}
