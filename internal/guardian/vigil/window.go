package vigil

import (
	"context"
	"sync"
	"time"
)

// WindowResult is the outcome of one sliding-window admission.
type WindowResult struct {
	Allowed bool
	// Count is the number of calls inside the window before this one.
	Count int
	Limit int
}

// WindowStore counts calls per key over a sliding window.
type WindowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (WindowResult, error)
}

// InMemoryWindowStore implements WindowStore with per-key timestamp lists.
// It is process-local. Every pruneEvery admissions, windows that have fully
// expired are dropped.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time

	calls      int
	pruneEvery int
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{
		windows:    make(map[string]*slidingWindow),
		now:        time.Now,
		pruneEvery: 1024,
	}
}

// Allow records a call for key when fewer than limit calls fall inside the
// window. Denied calls are not recorded.
func (s *InMemoryWindowStore) Allow(_ context.Context, key string, limit int, window time.Duration) (WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.calls++
	if s.calls%s.pruneEvery == 0 {
		s.prune(now)
	}

	sw := s.getOrCreate(key, window)
	sw.cleanup(now)
	count := len(sw.timestamps)

	if count >= limit {
		return WindowResult{Allowed: false, Count: count, Limit: limit}, nil
	}
	sw.timestamps = append(sw.timestamps, now)
	return WindowResult{Allowed: true, Count: count, Limit: limit}, nil
}

// size returns the number of tracked windows.
func (s *InMemoryWindowStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// prune drops windows with no calls left inside them. Must be called while
// holding s.mu.
func (s *InMemoryWindowStore) prune(now time.Time) {
	for key, sw := range s.windows {
		sw.cleanup(now)
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
		}
	}
}

// cleanup removes timestamps at or before now-window.
func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// Must be called while holding s.mu.
func (s *InMemoryWindowStore) getOrCreate(key string, window time.Duration) *slidingWindow {
	if sw := s.windows[key]; sw != nil {
		sw.window = window
		return sw
	}
	sw := &slidingWindow{window: window}
	s.windows[key] = sw
	return sw
}
