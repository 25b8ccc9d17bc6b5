package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yszxh/claude-bridge/internal/credentials"
)

// expirySkew is how close to expiry an access token may get before it is
// refreshed proactively.
const expirySkew = 60 * time.Second

// Manager owns the token lifecycle: the in-memory token cache, the persisted
// record, and refresh deduplication. A single instance is constructed at
// startup and passed by reference into the dispatcher and HTTP layer.
type Manager struct {
	oauth *AnthropicAuth
	store *credentials.Store

	mu     sync.Mutex
	record *credentials.TokenRecord

	refreshGroup singleflight.Group
	now          func() time.Time
}

// NewManager creates a token manager backed by the given OAuth client and
// credential store.
func NewManager(oauth *AnthropicAuth, store *credentials.Store) *Manager {
	return &Manager{
		oauth: oauth,
		store: store,
		now:   time.Now,
	}
}

// GetValidAccessToken returns a cached access token if its expiry is more
// than 60 seconds away; otherwise it refreshes first. Returns
// ErrNotAuthenticated when no token record exists at all.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, error) {
	record, err := m.currentRecord()
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrNotAuthenticated
	}

	if record.ExpiresIn(m.now()) > expirySkew {
		return record.AccessToken, nil
	}

	refreshed, err := m.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new access token.
// Concurrent callers share a single in-flight exchange: of N callers needing
// a refresh, exactly one POST reaches the token endpoint and all N receive
// its result. The slot is released unconditionally, success or failure.
// The exchange runs on a detached context so a disconnecting caller cannot
// cancel it for the others; the OAuth client's own timeout still bounds it.
func (m *Manager) Refresh(ctx context.Context) (*credentials.TokenRecord, error) {
	refreshCtx := context.WithoutCancel(ctx)
	result, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.doRefresh(refreshCtx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*credentials.TokenRecord), nil
}

func (m *Manager) doRefresh(ctx context.Context) (*credentials.TokenRecord, error) {
	record, err := m.currentRecord()
	if err != nil {
		return nil, err
	}
	if record == nil || record.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	resp, err := m.oauth.Refresh(ctx, record.RefreshToken)
	if err != nil {
		if IsInvalidGrant(err) {
			// The refresh token is dead; only a fresh authorization can
			// recover. Drop the record so status reports unauthenticated.
			log.Warn("refresh token rejected with invalid_grant, re-authorization required")
			m.clear()
		}
		return nil, err
	}

	updated := &credentials.TokenRecord{
		AccessToken:  resp.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli(),
	}
	// The refresh token rotates only when the upstream returns a new one.
	if resp.RefreshToken != "" {
		updated.RefreshToken = resp.RefreshToken
	}

	if err = m.store.Save(updated); err != nil {
		log.Errorf("failed to persist refreshed tokens: %v", err)
	}

	m.mu.Lock()
	m.record = updated
	m.mu.Unlock()

	return updated, nil
}

// StoreTokens persists the result of a successful authorization-code exchange
// and primes the in-memory cache.
func (m *Manager) StoreTokens(resp *TokenResponse) error {
	record := &credentials.TokenRecord{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli(),
	}
	if err := m.store.Save(record); err != nil {
		return err
	}
	m.mu.Lock()
	m.record = record
	m.mu.Unlock()
	return nil
}

// Invalidate clears the in-memory token cache, forcing the next
// GetValidAccessToken to re-derive credentials from disk, including a refresh
// if applicable. Used after an upstream 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.record = nil
	m.mu.Unlock()
}

// IsAuthenticated reports whether a record with both tokens exists.
// It does not check expiry.
func (m *Manager) IsAuthenticated() bool {
	record, err := m.currentRecord()
	return err == nil && record.Complete()
}

// ExpiresAt returns the cached access token expiry in epoch milliseconds, or
// zero when unauthenticated.
func (m *Manager) ExpiresAt() int64 {
	record, err := m.currentRecord()
	if err != nil || record == nil {
		return 0
	}
	return record.ExpiresAt
}

// Logout deletes the persisted record and clears the in-memory cache.
// Idempotent: logging out while logged out is not an error.
func (m *Manager) Logout() error {
	if err := m.store.Delete(); err != nil {
		return err
	}
	m.mu.Lock()
	m.record = nil
	m.mu.Unlock()
	return nil
}

// currentRecord returns the cached record, falling back to the persisted file.
func (m *Manager) currentRecord() (*credentials.TokenRecord, error) {
	m.mu.Lock()
	if m.record != nil {
		record := m.record
		m.mu.Unlock()
		return record, nil
	}
	m.mu.Unlock()

	record, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if record != nil {
		m.mu.Lock()
		m.record = record
		m.mu.Unlock()
	}
	return record, nil
}

func (m *Manager) clear() {
	if err := m.store.Delete(); err != nil {
		log.Warnf("failed to delete credentials after invalid_grant: %v", err)
	}
	m.mu.Lock()
	m.record = nil
	m.mu.Unlock()
}
