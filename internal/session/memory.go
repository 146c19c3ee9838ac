// Package session keeps conversation state between turns. State lives in
// process memory only and expires after a period of inactivity.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
)

// entry holds one stored session.
type entry struct {
	state     *dialogue.TurnState
	updatedAt time.Time
}

// MemoryStore is a TTL-bounded in-memory dialogue.SessionStore. States are
// deep-copied on the way in and out so callers never share a record.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

var _ dialogue.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store. A ttl of zero disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load returns a copy of the stored state, or nil for unknown and expired sessions.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*dialogue.TurnState, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		s.Delete(sessionID)
		logging.SessionDebug("session %s expired", sessionID)
		return nil, nil
	}
	st, err := e.state.Clone()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return st, nil
}

// Save stores a copy of state.
func (s *MemoryStore) Save(_ context.Context, sessionID string, state *dialogue.TurnState) error {
	if state == nil {
		return fmt.Errorf("save session %s: nil state", sessionID)
	}
	st, err := state.Clone()
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = &entry{state: st, updatedAt: s.now()}
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Session("swept %d expired session(s), %d left", removed, len(s.entries))
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) expired(e *entry) bool {
	return s.ttl > 0 && s.now().Sub(e.updatedAt) > s.ttl
}
