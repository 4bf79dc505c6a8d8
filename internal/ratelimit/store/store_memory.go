package store

import (
	"context"
	"sync"
	"time"

	"formvault/internal/ratelimit"
)

// InMemory is a sliding window counter per key. It is not shared between
// processes; use Redis when running more than one instance.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string][]time.Time), now: time.Now}
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.windows[key], now.Add(-window))

	if len(hits) >= limit {
		s.windows[key] = hits
		resetAt := now.Add(window)
		if len(hits) > 0 {
			resetAt = hits[0].Add(window)
		}
		return &ratelimit.Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}

	hits = append(hits, now)
	s.windows[key] = hits
	return &ratelimit.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(hits),
		ResetAt:   hits[0].Add(window),
	}, nil
}

// Sweep drops keys with no hits inside window.
func (s *InMemory) Sweep(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	for key, hits := range s.windows {
		if hits = prune(hits, cutoff); len(hits) == 0 {
			delete(s.windows, key)
		} else {
			s.windows[key] = hits
		}
	}
}

// RunSweeper calls Sweep every window until ctx is done.
func (s *InMemory) RunSweeper(ctx context.Context, window time.Duration) error {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(window)
		}
	}
}

// prune drops timestamps at or before cutoff. hits is ordered oldest first.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	return hits[i:]
}
