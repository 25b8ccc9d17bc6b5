package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// claudeCLIFile mirrors the credential file layout written by the Claude CLI.
// Only the OAuth section is read; everything else is ignored.
type claudeCLIFile struct {
	ClaudeAIOAuth struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresAt    int64  `json:"expiresAt"`
	} `json:"claudeAiOauth"`
}

// LoadClaudeCLI reads the external Claude CLI credential file as a fallback
// credential source. It returns (nil, nil) when the file is absent or holds
// no usable access token; the file is never written back.
func LoadClaudeCLI(path string) (*TokenRecord, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var file claudeCLIFile
	if err = json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.ClaudeAIOAuth.AccessToken == "" {
		return nil, nil
	}
	record := &TokenRecord{
		AccessToken:  file.ClaudeAIOAuth.AccessToken,
		RefreshToken: file.ClaudeAIOAuth.RefreshToken,
		ExpiresAt:    file.ClaudeAIOAuth.ExpiresAt,
	}
	if record.ExpiresAt != 0 && record.ExpiresIn(time.Now()) <= 0 {
		return nil, nil
	}
	return record, nil
}
