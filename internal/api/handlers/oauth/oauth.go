// Package oauth provides the HTTP handlers for the PKCE login flow: URL
// generation, the browser callback, status, and logout.
package oauth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/yszxh/claude-bridge/internal/api/handlers"
	"github.com/yszxh/claude-bridge/internal/auth"
)

const successHTML = `<!DOCTYPE html>
<html>
<head><title>claude-bridge</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>Authentication successful</h2>
<p>claude-bridge is now connected to your Anthropic account. You can close this tab.</p>
</body>
</html>`

// Handler serves the /auth endpoints.
type Handler struct {
	*handlers.BaseAPIHandler
}

// NewHandler creates the OAuth flow handler.
func NewHandler(base *handlers.BaseAPIHandler) *Handler {
	return &Handler{BaseAPIHandler: base}
}

// Login handles GET /auth/login by redirecting the browser straight to the
// authorization endpoint.
func (h *Handler) Login(c *gin.Context) {
	url, _, ok := h.newAuthorization(c)
	if !ok {
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GetURL handles GET /auth/get-url, returning the authorization URL and its
// state for clients that drive the browser themselves.
func (h *Handler) GetURL(c *gin.Context) {
	url, state, ok := h.newAuthorization(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "state": state})
}

func (h *Handler) newAuthorization(c *gin.Context) (url, state string, ok bool) {
	pkce, err := auth.GeneratePKCECodes()
	if err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", err.Error())
		return "", "", false
	}

	url, err = h.OAuth.BuildAuthorizationURL(pkce)
	if err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", err.Error())
		return "", "", false
	}

	h.Sessions.Put(pkce.State, pkce.CodeVerifier)
	return url, pkce.State, true
}

// Callback handles GET /auth/callback?code&state: it validates the state
// against the pending PKCE sessions, exchanges the code, and persists the
// resulting tokens. The session is consumed whether or not the exchange
// succeeds.
func (h *Handler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		handlers.WriteError(c, http.StatusBadRequest, "authentication_error", errParam)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		handlers.WriteError(c, http.StatusBadRequest, "invalid_request_error", "No authorization code received")
		return
	}

	codeVerifier, ok := h.Sessions.Take(state)
	if !ok {
		handlers.WriteError(c, http.StatusBadRequest, "invalid_request_error", auth.ErrInvalidState.Error())
		return
	}

	tokenResp, err := h.OAuth.ExchangeCode(c.Request.Context(), code, state, codeVerifier)
	if err != nil {
		log.Errorf("authorization code exchange failed: %v", err)
		handlers.WriteError(c, http.StatusBadGateway, "authentication_error", err.Error())
		return
	}

	if err = h.Tokens.StoreTokens(tokenResp); err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	log.Info("OAuth login completed, credentials saved")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successHTML))
}

// Status handles GET /auth/status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.Tokens.IsAuthenticated(),
		"expires_at":    h.Tokens.ExpiresAt(),
	})
}

// Logout handles GET /auth/logout. Idempotent.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Tokens.Logout(); err != nil {
		handlers.WriteError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
