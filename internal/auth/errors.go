package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the token manager.
var (
	// ErrNotAuthenticated means no token record exists at all; the user must
	// complete the OAuth flow before the proxy can forward requests.
	ErrNotAuthenticated = errors.New("not authenticated: run the login flow first")

	// ErrNoRefreshToken means a refresh was requested but no refresh token is
	// stored.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrInvalidState means a callback arrived with a state value that does
	// not match any pending PKCE session.
	ErrInvalidState = errors.New("Invalid or expired state parameter")
)

// TokenExchangeError reports a rejected authorization-code or refresh-token
// exchange, carrying the upstream status and body.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// InvalidGrant reports whether the upstream rejected the stored refresh token
// outright, which requires re-authorization from scratch.
func (e *TokenExchangeError) InvalidGrant() bool {
	return strings.Contains(e.Body, "invalid_grant")
}

// IsInvalidGrant checks err for a TokenExchangeError signalling invalid_grant.
func IsInvalidGrant(err error) bool {
	var exchangeErr *TokenExchangeError
	return errors.As(err, &exchangeErr) && exchangeErr.InvalidGrant()
}
