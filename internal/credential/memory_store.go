package credential

import (
	"context"
	"crypto/subtle"
	"log"
	"sync"
	"time"

	"taskhive/internal/clock"
)

type memoryEntry struct {
	digest    string
	payload   string
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-process Store. Expiry is enforced
// at redemption time; a background sweep keeps the map from growing
// with never-redeemed entries.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.Mutex
	clock   clock.Clock
	done    chan struct{}
}

// NewMemoryStore creates an in-memory credential store
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		clock:   clk,
		done:    make(chan struct{}),
	}
	go s.sweepExpired()
	return s
}

// Issue stores a fresh secret for (kind, subject), replacing any prior entry
func (s *MemoryStore) Issue(ctx context.Context, kind Kind, subject, payload string, ttl time.Duration) (string, error) {
	secret, err := generateSecret(kind)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[storageKey(kind, subject)] = &memoryEntry{
		digest:    digest(secret),
		payload:   payload,
		expiresAt: s.clock.Now().Add(ttl),
	}

	return secret, nil
}

// Redeem validates and deletes the entry in one critical section, so
// exactly one of any concurrent redemption attempts can win.
func (s *MemoryStore) Redeem(ctx context.Context, kind Kind, subject, supplied string) (string, error) {
	key := storageKey(kind, subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		log.Printf("credential redeem failed: no entry for %s:%s", kind, subject)
		return "", ErrInvalid
	}

	if s.clock.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		log.Printf("credential redeem failed: expired entry for %s:%s", kind, subject)
		return "", ErrInvalid
	}

	if subtle.ConstantTimeCompare([]byte(entry.digest), []byte(digest(supplied))) != 1 {
		log.Printf("credential redeem failed: secret mismatch for %s:%s", kind, subject)
		return "", ErrInvalid
	}

	delete(s.entries, key)
	return entry.payload, nil
}

// Close stops the background sweep
func (s *MemoryStore) Close() {
	close(s.done)
}

// sweepExpired periodically removes expired entries. Correctness does
// not depend on this; Redeem checks expiry itself.
func (s *MemoryStore) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.clock.Now()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
