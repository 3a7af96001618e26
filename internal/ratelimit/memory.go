package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is the sliding log for one key. Timestamps outside the window are
// purged lazily on each check, not by a background sweep; the reaper only
// drops keys idle past the retention bound.
type window struct {
	mu        sync.Mutex
	requests  []time.Time
	resetTime time.Time
	lastSeen  time.Time
}

// MemoryStore is an in-process sliding-window store. The key map is guarded
// by a read-mostly mutex; admission itself serializes on the per-key mutex so
// unrelated tenants never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryStore) getWindow(key string) *window {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		return w
	}
	w = &window{}
	s.windows[key] = w
	return w
}

// Admit applies the sliding-window-log check for one key. Linearizable per
// key via the window mutex.
func (s *MemoryStore) Admit(_ context.Context, key string, limit int, windowSize time.Duration) (*Decision, error) {
	w := s.getWindow(key)
	now := s.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now

	// Lazy purge of timestamps that fell out of the window
	cutoff := now.Add(-windowSize)
	kept := w.requests[:0]
	for _, ts := range w.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.requests = kept

	// Rolling reset boundary: only advance once the previous one elapsed
	if !w.resetTime.After(now) {
		w.resetTime = now.Add(windowSize)
	}

	if len(w.requests) >= limit {
		// The rejected attempt is not recorded and the stored reset time
		// is returned unmodified, so backing off is never penalized.
		return &Decision{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetTime: w.resetTime,
			Total:     len(w.requests),
		}, nil
	}

	w.requests = append(w.requests, now)
	return &Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.requests),
		ResetTime: w.resetTime,
		Total:     len(w.requests),
	}, nil
}

// Sweep drops keys that have been idle longer than retention and returns how
// many were removed. Memory reclamation only; admission correctness never
// depends on it.
func (s *MemoryStore) Sweep(retention time.Duration) int {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		stale := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

func (s *MemoryStore) Close() error { return nil }

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)
