package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process sliding-window store.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, key string, bucket Bucket, now time.Time) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-bucket.Window)

	// Prune old entries
	times := s.hits[key]
	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= bucket.MaxRequests {
		s.hits[key] = pruned
		if len(pruned) == 0 {
			return false, bucket.Window, nil
		}
		return false, pruned[0].Add(bucket.Window).Sub(now), nil
	}

	s.hits[key] = append(pruned, now)
	return true, 0, nil
}

// Sweep drops keys whose hits are all older than maxWindow.
func (s *MemoryStore) Sweep(now time.Time, maxWindow time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxWindow)
	removed := 0
	for key, times := range s.hits {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(s.hits, key)
			removed++
		}
	}
	return removed
}
