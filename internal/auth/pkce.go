package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds the secrets for one PKCE authorization attempt.
// State binds the browser callback to this attempt (CSRF protection) and is
// generated independently of the verifier.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
	State         string
}

// GeneratePKCECodes generates a PKCE code verifier and challenge pair
// following RFC 7636, plus an independent random state token.
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := randomURLSafeToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state, err := randomURLSafeToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: generateCodeChallenge(codeVerifier),
		State:         state,
	}, nil
}

// randomURLSafeToken returns n cryptographically random bytes encoded as
// URL-safe base64 without padding.
func randomURLSafeToken(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

// generateCodeChallenge creates the S256 challenge: URL-safe base64 of the
// SHA-256 digest of the verifier, without padding.
func generateCodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}
