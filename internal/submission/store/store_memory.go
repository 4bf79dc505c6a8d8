package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"

	"formvault/internal/submission/models"
	"formvault/pkg/platform/sentinel"
)

// InMemory keeps submissions in a map guarded by a mutex. It mirrors SQLStore
// semantics for handler and service tests.
type InMemory struct {
	mu          sync.Mutex
	submissions map[int64]models.Submission
	lastID      int64
}

func NewInMemory() *InMemory {
	return &InMemory{submissions: make(map[int64]models.Submission)}
}

func (s *InMemory) Create(_ context.Context, sub *models.Submission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	stored := clone(*sub)
	stored.ID = s.lastID
	stored.Email = sql.NullString{}
	s.submissions[stored.ID] = stored
	return stored.ID, nil
}

func (s *InMemory) AttachEmail(_ context.Context, id int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return fmt.Errorf("submission %d: %w", id, sentinel.ErrNotFound)
	}
	if sub.Email.Valid {
		return fmt.Errorf("submission %d email: %w", id, sentinel.ErrAlreadyUsed)
	}
	sub.Email = sql.NullString{String: email, Valid: true}
	s.submissions[id] = sub
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id int64) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, sentinel.ErrNotFound)
	}
	out := clone(sub)
	return &out, nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

// Count returns the number of stored submissions.
func (s *InMemory) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

func clone(sub models.Submission) models.Submission {
	sub.Image = bytes.Clone(nonNil(sub.Image))
	sub.PDF = bytes.Clone(nonNil(sub.PDF))
	return sub
}
