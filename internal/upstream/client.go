// Package upstream dispatches prepared requests to the Anthropic Messages
// API: credential resolution, header construction, the single 401-triggered
// retry, and the live model listing with its static fallback.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/yszxh/claude-bridge/internal/auth"
	"github.com/yszxh/claude-bridge/internal/config"
	"github.com/yszxh/claude-bridge/internal/constant"
	"github.com/yszxh/claude-bridge/internal/credentials"
	"github.com/yszxh/claude-bridge/internal/translator"
	"github.com/yszxh/claude-bridge/internal/util"
)

// Client talks to the upstream Messages API. A single instance is shared by
// all handlers.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	tokens            *auth.Manager
	fallbackCredsPath string
	retryBudget       int
}

// NewClient creates the upstream client. The HTTP client carries no overall
// timeout because streaming responses are open-ended; cancellation comes from
// the request context.
func NewClient(cfg *config.Config, tokens *auth.Manager) *Client {
	return &Client{
		httpClient:        util.SetProxy(cfg.ProxyURL, &http.Client{}),
		baseURL:           constant.AnthropicAPIURL,
		tokens:            tokens,
		fallbackCredsPath: cfg.ClaudeCLICredentialsFile,
		retryBudget:       cfg.RequestRetry,
	}
}

// credential is a resolved upstream credential. OAuth tokens require the
// Bearer header plus the OAuth beta flag; plain API keys go in x-api-key.
type credential struct {
	token string
	oauth bool
}

// resolve walks the credential precedence chain: explicit per-request key,
// then the token manager (in-memory cache or persisted record), then the
// external Claude CLI credential file.
func (c *Client) resolve(ctx context.Context, explicitKey string) (credential, error) {
	if explicitKey != "" {
		return credential{token: explicitKey}, nil
	}

	token, err := c.tokens.GetValidAccessToken(ctx)
	if err == nil {
		return credential{token: token, oauth: true}, nil
	}
	if !errors.Is(err, auth.ErrNotAuthenticated) {
		return credential{}, err
	}

	record, errFallback := credentials.LoadClaudeCLI(c.fallbackCredsPath)
	if errFallback != nil {
		log.Warnf("failed to read fallback credential file: %v", errFallback)
	}
	if record != nil {
		log.Debug("using Claude CLI fallback credentials")
		return credential{token: record.AccessToken, oauth: true}, nil
	}
	return credential{}, err
}

// Messages posts a prepared native request body upstream. On a 401 the
// cached token is invalidated and the call retried exactly once; a second
// failure is returned verbatim for the handler to surface. The caller owns
// the response body.
func (c *Client) Messages(ctx context.Context, body []byte, explicitKey string, stream bool) (*http.Response, error) {
	var resp *http.Response
	for attempt := 0; ; attempt++ {
		cred, err := c.resolve(ctx, explicitKey)
		if err != nil {
			return nil, err
		}

		resp, err = c.post(ctx, cred, body, stream)
		if err != nil {
			return nil, err
		}

		// Explicit per-request credentials are the caller's problem; only
		// managed tokens are re-derived.
		if resp.StatusCode != http.StatusUnauthorized || explicitKey != "" || attempt >= c.retryBudget {
			return resp, nil
		}

		log.Warn("upstream returned 401, invalidating cached token and retrying")
		_ = resp.Body.Close()
		c.tokens.Invalidate()
	}
}

func (c *Client) post(ctx context.Context, cred credential, body []byte, stream bool) (*http.Response, error) {
	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Anthropic-Version", constant.AnthropicVersion)
	if cred.oauth {
		req.Header.Set("Authorization", "Bearer "+cred.token)
		req.Header.Set("Anthropic-Beta", constant.AnthropicBetaOAuth)
	} else {
		req.Header.Set("X-Api-Key", cred.token)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

// ListModelIDs fetches the live model list, falling back to the static table
// when the upstream is unreachable or the caller is unauthenticated.
func (c *Client) ListModelIDs(ctx context.Context, explicitKey string) []string {
	cred, err := c.resolve(ctx, explicitKey)
	if err != nil {
		return translator.FallbackModels
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/models", c.baseURL), nil)
	if err != nil {
		return translator.FallbackModels
	}
	req.Header.Set("Anthropic-Version", constant.AnthropicVersion)
	if cred.oauth {
		req.Header.Set("Authorization", "Bearer "+cred.token)
		req.Header.Set("Anthropic-Beta", constant.AnthropicBetaOAuth)
	} else {
		req.Header.Set("X-Api-Key", cred.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("live model listing failed, using static fallback: %v", err)
		return translator.FallbackModels
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("live model listing returned status %d, using static fallback", resp.StatusCode)
		return translator.FallbackModels
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return translator.FallbackModels
	}

	var ids []string
	for _, model := range gjson.GetBytes(body, "data").Array() {
		if id := model.Get("id").String(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return translator.FallbackModels
	}
	return ids
}

// SetBaseURL overrides the upstream base URL. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}
