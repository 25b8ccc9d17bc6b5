package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yszxh/claude-bridge/internal/util"
)

const (
	anthropicAuthURL  = "https://claude.ai/oauth/authorize"
	anthropicTokenURL = "https://console.anthropic.com/v1/oauth/token"
	anthropicClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	anthropicScope    = "org:create_api_key user:profile user:inference"

	// Token exchange and refresh calls carry a fixed bound; a hung OAuth
	// endpoint must not wedge request handling.
	tokenRequestTimeout = 10 * time.Second
)

// TokenResponse is the decoded body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AnthropicAuth performs the PKCE authorization-code and refresh-token
// exchanges against the Anthropic OAuth endpoint.
type AnthropicAuth struct {
	httpClient    *http.Client
	redirectURI   string
	tokenEndpoint string
}

// NewAnthropicAuth creates an OAuth client. redirectURI must match the
// /auth/callback route of the running server. proxyURL optionally routes the
// token endpoint calls through an outbound proxy.
func NewAnthropicAuth(redirectURI, proxyURL string) *AnthropicAuth {
	return &AnthropicAuth{
		httpClient:    util.SetProxy(proxyURL, &http.Client{Timeout: tokenRequestTimeout}),
		redirectURI:   redirectURI,
		tokenEndpoint: anthropicTokenURL,
	}
}

// BuildAuthorizationURL deterministically constructs the authorization
// endpoint URL for the given PKCE codes. Pure; no side effects, no network.
func (a *AnthropicAuth) BuildAuthorizationURL(pkce *PKCECodes) (string, error) {
	if pkce == nil {
		return "", fmt.Errorf("PKCE codes are required")
	}

	params := url.Values{
		"code":                  {"true"},
		"client_id":             {anthropicClientID},
		"response_type":         {"code"},
		"redirect_uri":          {a.redirectURI},
		"scope":                 {anthropicScope},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
		"state":                 {pkce.State},
	}

	return fmt.Sprintf("%s?%s", anthropicAuthURL, params.Encode()), nil
}

// ExchangeCode exchanges an authorization code for tokens. Codes pasted from
// the browser sometimes arrive as "code#state"; the fragment is split off.
func (a *AnthropicAuth) ExchangeCode(ctx context.Context, code, state, codeVerifier string) (*TokenResponse, error) {
	if codeVerifier == "" {
		return nil, fmt.Errorf("code verifier is required for token exchange")
	}

	parsedCode := code
	if splits := strings.SplitN(code, "#", 2); len(splits) == 2 {
		parsedCode = splits[0]
		if splits[1] != "" {
			state = splits[1]
		}
	}

	reqBody := map[string]any{
		"grant_type":    "authorization_code",
		"code":          parsedCode,
		"state":         state,
		"client_id":     anthropicClientID,
		"redirect_uri":  a.redirectURI,
		"code_verifier": codeVerifier,
	}
	return a.postToken(ctx, reqBody)
}

// Refresh exchanges a refresh token for a new access token.
func (a *AnthropicAuth) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	reqBody := map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     anthropicClientID,
	}
	return a.postToken(ctx, reqBody)
}

func (a *AnthropicAuth) postToken(ctx context.Context, reqBody map[string]any) (*TokenResponse, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenEndpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp TokenResponse
	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("malformed token response: %v", err)}
	}
	return &tokenResp, nil
}
