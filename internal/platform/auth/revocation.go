package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore keeps the ids of signed-out tokens until they would
// have expired. Expired entries are removed by a background loop.
type TokenRevocationStore struct {
	mu       sync.RWMutex
	entries  map[string]revocationEntry
	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

type revocationEntry struct {
	UserID    string
	ExpiresAt time.Time
}

// NewTokenRevocationStore creates a store that prunes expired entries every
// five minutes.
func NewTokenRevocationStore() *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries:  make(map[string]revocationEntry),
		interval: 5 * time.Minute,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// RevokeForUser marks jti as revoked until expiresAt.
func (s *TokenRevocationStore) RevokeForUser(jti, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = revocationEntry{UserID: userID, ExpiresAt: expiresAt}
}

// IsRevoked reports whether jti has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

// Count returns the number of tracked revocations.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop.
func (s *TokenRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.cleanup(now)
		}
	}
}

func (s *TokenRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
}
