package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testAuth(t *testing.T, handler http.HandlerFunc) *AnthropicAuth {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &AnthropicAuth{
		httpClient:    server.Client(),
		redirectURI:   "http://localhost:8085/auth/callback",
		tokenEndpoint: server.URL,
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	a := NewAnthropicAuth("http://localhost:8085/auth/callback", "")
	pkce := &PKCECodes{CodeVerifier: "verifier", CodeChallenge: "challenge-value", State: "state-value"}

	rawURL, err := a.BuildAuthorizationURL(pkce)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	require.Equal(t, "claude.ai", parsed.Host)
	require.Equal(t, "/oauth/authorize", parsed.Path)

	query := parsed.Query()
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Equal(t, "challenge-value", query.Get("code_challenge"))
	require.Equal(t, "state-value", query.Get("state"))
	require.Equal(t, anthropicClientID, query.Get("client_id"))
	require.Equal(t, "http://localhost:8085/auth/callback", query.Get("redirect_uri"))
	require.Contains(t, query.Get("scope"), "user:inference")
}

func TestBuildAuthorizationURL_Deterministic(t *testing.T) {
	a := NewAnthropicAuth("http://localhost:8085/auth/callback", "")
	pkce := &PKCECodes{CodeVerifier: "v", CodeChallenge: "c", State: "s"}

	first, err := a.BuildAuthorizationURL(pkce)
	require.NoError(t, err)
	second, err := a.BuildAuthorizationURL(pkce)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestExchangeCode_SendsJSONBody(t *testing.T) {
	var got map[string]any
	a := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			ExpiresIn:    3600,
		})
	})

	resp, err := a.ExchangeCode(context.Background(), "the-code", "the-state", "the-verifier")
	require.NoError(t, err)
	require.Equal(t, "at-1", resp.AccessToken)
	require.Equal(t, "rt-1", resp.RefreshToken)

	require.Equal(t, "authorization_code", got["grant_type"])
	require.Equal(t, "the-code", got["code"])
	require.Equal(t, "the-state", got["state"])
	require.Equal(t, "the-verifier", got["code_verifier"])
}

func TestExchangeCode_SplitsFragmentState(t *testing.T) {
	var got map[string]any
	a := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at", RefreshToken: "rt"})
	})

	_, err := a.ExchangeCode(context.Background(), "raw-code#embedded-state", "outer-state", "v")
	require.NoError(t, err)
	require.Equal(t, "raw-code", got["code"])
	require.Equal(t, "embedded-state", got["state"])
}

func TestExchangeCode_RequiresVerifier(t *testing.T) {
	a := NewAnthropicAuth("http://localhost:8085/auth/callback", "")
	_, err := a.ExchangeCode(context.Background(), "code", "state", "")
	require.Error(t, err)
}

func TestExchangeCode_UpstreamRejection(t *testing.T) {
	a := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := a.ExchangeCode(context.Background(), "code", "state", "v")
	require.Error(t, err)

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
	require.True(t, exchangeErr.InvalidGrant())
	require.True(t, IsInvalidGrant(err))
}

func TestRefresh_EmptyToken(t *testing.T) {
	a := NewAnthropicAuth("http://localhost:8085/auth/callback", "")
	_, err := a.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefresh_MalformedResponseBody(t *testing.T) {
	a := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := a.Refresh(context.Background(), "rt")
	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.True(t, strings.Contains(exchangeErr.Body, "malformed"))
}
