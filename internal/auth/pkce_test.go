package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCECodes_ChallengeMatchesVerifier(t *testing.T) {
	pkce, err := GeneratePKCECodes()
	require.NoError(t, err)

	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	expected := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
	require.Equal(t, expected, pkce.CodeChallenge)
}

func TestGeneratePKCECodes_DistinctAcrossCalls(t *testing.T) {
	first, err := GeneratePKCECodes()
	require.NoError(t, err)
	second, err := GeneratePKCECodes()
	require.NoError(t, err)

	require.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
	require.NotEqual(t, first.CodeChallenge, second.CodeChallenge)
	require.NotEqual(t, first.State, second.State)

	// The state must be independent of the verifier-derived values too.
	require.NotEqual(t, first.State, first.CodeVerifier)
	require.NotEqual(t, first.State, first.CodeChallenge)
}

func TestGeneratePKCECodes_VerifierLength(t *testing.T) {
	pkce, err := GeneratePKCECodes()
	require.NoError(t, err)

	// RFC 7636 requires 43-128 characters.
	require.GreaterOrEqual(t, len(pkce.CodeVerifier), 43)
	require.LessOrEqual(t, len(pkce.CodeVerifier), 128)
}
