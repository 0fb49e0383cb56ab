package service

import (
	"context"
	"sync"
	"time"
)

type attemptEntry struct {
	count       int
	lastFailure time.Time
}

// MemoryAttemptStore is the in-process fallback for failed-login counters when
// Redis is not configured. Counters are keyed per channel and decay after the
// window elapses.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]attemptEntry
	now     func() time.Time
}

// NewMemoryAttemptStore constructs the store with the given decay window.
func NewMemoryAttemptStore(window time.Duration) *MemoryAttemptStore {
	return &MemoryAttemptStore{
		window:  window,
		entries: make(map[string]attemptEntry),
		now:     time.Now,
	}
}

// Increment bumps the failure count for a channel and returns the new count.
func (s *MemoryAttemptStore) Increment(ctx context.Context, channel string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[channel]
	if s.expired(entry) {
		entry = attemptEntry{}
	}
	entry.count++
	entry.lastFailure = s.now()
	s.entries[channel] = entry
	return entry.count, nil
}

// Count returns the current failure count for a channel.
func (s *MemoryAttemptStore) Count(ctx context.Context, channel string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[channel]
	if s.expired(entry) {
		delete(s.entries, channel)
		return 0, nil
	}
	return entry.count, nil
}

// Reset clears the failure count after a successful authentication.
func (s *MemoryAttemptStore) Reset(ctx context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, channel)
	return nil
}

func (s *MemoryAttemptStore) expired(entry attemptEntry) bool {
	if entry.count == 0 {
		return false
	}
	return s.window > 0 && s.now().Sub(entry.lastFailure) > s.window
}
