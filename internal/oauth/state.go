package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultStateTTL bounds how long a login may wait for its callback
	DefaultStateTTL = 10 * time.Minute

	stateBytes       = 32
	maxStateAttempts = 8
)

// StateSet holds the outstanding, not yet redeemed state tokens of this
// process. Redeem is an atomic check-and-remove.
type StateSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // value -> created
	now     func() time.Time
	random  func() (string, error)
}

// NewStateSet creates an empty set; non-positive ttl uses DefaultStateTTL
func NewStateSet(ttl time.Duration) *StateSet {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
		random:  randomState,
	}
}

// Issue generates a value not already outstanding and adds it to the set
func (s *StateSet) Issue() (string, error) {
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		value, err := s.random()
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		now := s.now()
		s.sweep(now)
		if _, exists := s.entries[value]; exists {
			s.mu.Unlock()
			continue
		}
		s.entries[value] = now
		s.mu.Unlock()
		return value, nil
	}
	return "", fmt.Errorf("failed to generate unique oauth state after %d attempts", maxStateAttempts)
}

// Redeem removes value and reports whether it was outstanding and fresh.
// Exactly one of any concurrent redemptions of the same value succeeds.
func (s *StateSet) Redeem(value string) bool {
	if value == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	created, ok := s.entries[value]
	if !ok {
		return false
	}
	delete(s.entries, value)
	return s.now().Sub(created) <= s.ttl
}

// Len reports the number of outstanding values
func (s *StateSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep must be called with mu held
func (s *StateSet) sweep(now time.Time) {
	for value, created := range s.entries {
		if now.Sub(created) > s.ttl {
			delete(s.entries, value)
		}
	}
}

func randomState() (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
