package ratelimit

import (
	"context"
	"sync"
	"time"

	"scormrelay/internal/types"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore counts in process memory. Suitable for a single instance and
// for local mode.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   types.Clock
}

func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryStore{windows: make(map[string]*window), clock: clock}
}

// IncrementAndCheck counts one request for key in the current window.
func (s *MemoryStore) IncrementAndCheck(_ context.Context, key string, limit int, d time.Duration) (Result, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		s.sweep(now)
		w = &window{resetAt: now.Add(d)}
		s.windows[key] = w
	}
	w.count++
	return result(w.count, limit, w.resetAt), nil
}

// sweep drops expired windows. Called with mu held.
func (s *MemoryStore) sweep(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
}
