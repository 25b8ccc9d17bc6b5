// Package credentials persists the OAuth token record on disk and reads the
// optional fallback credential file written by the Claude CLI.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenRecord is the persisted refresh/access token pair with expiry.
// ExpiresAt always refers to AccessToken, in epoch milliseconds.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Complete reports whether the record carries both tokens. Incomplete records
// are never persisted.
func (r *TokenRecord) Complete() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != ""
}

// ExpiresIn returns the remaining lifetime of the access token.
func (r *TokenRecord) ExpiresIn(now time.Time) time.Duration {
	return time.UnixMilli(r.ExpiresAt).Sub(now)
}

// Store reads and writes a TokenRecord at a fixed per-user path with
// owner-only permissions.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. It returns (nil, nil) when no record has
// been saved yet.
func (s *Store) Load() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var record TokenRecord
	if err = json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if !record.Complete() {
		return nil, nil
	}
	return &record, nil
}

// Save writes the record with 0600 permissions, creating the parent directory
// with 0700 if needed.
func (s *Store) Save(record *TokenRecord) error {
	if !record.Complete() {
		return fmt.Errorf("refusing to persist incomplete token record")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Delete removes the persisted record. Deleting a record that does not exist
// is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete credentials file: %w", err)
	}
	return nil
}
