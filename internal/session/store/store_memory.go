package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"formvault/internal/session"
	"formvault/pkg/platform/sentinel"
)

type entry struct {
	session   *session.Session
	expiresAt time.Time
}

// InMemory keeps sessions in process memory. Expired entries are dropped on
// read and by Sweep.
type InMemory struct {
	mu       sync.Mutex
	sessions map[string]entry
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]entry), now: time.Now}
}

func (s *InMemory) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.sessions, id)
		return nil, fmt.Errorf("session expired: %w", sentinel.ErrNotFound)
	}
	out := e.session.Clone()
	out.MarkClean()
	return out, nil
}

func (s *InMemory) Save(_ context.Context, sess *session.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = entry{session: sess.Clone(), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *InMemory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *InMemory) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
