package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	sessionTTL           = 10 * time.Minute
	sessionSweepInterval = 60 * time.Second
)

// pkceSession is one pending authorization attempt, keyed by its state token.
type pkceSession struct {
	codeVerifier string
	createdAt    time.Time
}

// SessionStore holds pending PKCE sessions between /auth/get-url and the
// browser callback. A session is consumed exactly once; sessions older than
// the TTL are purged by a periodic sweep.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]pkceSession
	now      func() time.Time
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]pkceSession),
		now:      time.Now,
	}
}

// Put registers a pending session under its state token.
func (s *SessionStore) Put(state, codeVerifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state] = pkceSession{codeVerifier: codeVerifier, createdAt: s.now()}
}

// Take consumes the session for the given state, returning its code verifier.
// The session is deleted whether or not the subsequent exchange succeeds.
func (s *SessionStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[state]
	if !ok {
		return "", false
	}
	delete(s.sessions, state)
	if s.now().Sub(session.createdAt) > sessionTTL {
		return "", false
	}
	return session.codeVerifier, true
}

// Len returns the number of pending sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweeper purges expired sessions every minute until ctx is cancelled.
// The sweep runs independently of request handling.
func (s *SessionStore) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged := s.sweep(); purged > 0 {
					log.Debugf("purged %d expired PKCE sessions", purged)
				}
			}
		}
	}()
}

func (s *SessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	cutoff := s.now().Add(-sessionTTL)
	for state, session := range s.sessions {
		if session.createdAt.Before(cutoff) {
			delete(s.sessions, state)
			purged++
		}
	}
	return purged
}
