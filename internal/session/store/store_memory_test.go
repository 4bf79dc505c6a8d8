package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"formvault/internal/session"
	"formvault/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.store = NewInMemory()
	s.store.now = func() time.Time { return s.now }
}

func (s *InMemorySuite) TestSaveAndGet() {
	ctx := context.Background()
	sess := session.New("a", "csrf", s.now)
	s.Require().NoError(sess.MarkRegistered(3))
	s.Require().NoError(s.store.Save(ctx, sess, time.Hour))

	got, err := s.store.Get(ctx, "a")
	s.Require().NoError(err)
	s.Equal(session.StateRegistered, got.State)
	s.Equal(int64(3), got.SubmissionID)
	s.False(got.Dirty())
}

func (s *InMemorySuite) TestCopiesAreIsolated() {
	ctx := context.Background()
	sess := session.New("a", "csrf", s.now)
	s.Require().NoError(s.store.Save(ctx, sess, time.Hour))

	sess.AddFlash("not saved")
	got, err := s.store.Get(ctx, "a")
	s.Require().NoError(err)
	s.Empty(got.Flashes)

	got.Reset()
	got.AddFlash("also not saved")
	again, err := s.store.Get(ctx, "a")
	s.Require().NoError(err)
	s.Empty(again.Flashes)
}

func (s *InMemorySuite) TestSessionsDoNotLeak() {
	ctx := context.Background()
	a := session.New("a", "csrf-a", s.now)
	s.Require().NoError(a.MarkRegistered(1))
	s.Require().NoError(s.store.Save(ctx, a, time.Hour))
	s.Require().NoError(s.store.Save(ctx, session.New("b", "csrf-b", s.now), time.Hour))

	b, err := s.store.Get(ctx, "b")
	s.Require().NoError(err)
	s.Equal(session.StateEmpty, b.State)
	s.Equal("csrf-b", b.CSRFToken)
}

func (s *InMemorySuite) TestExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, session.New("a", "c", s.now), time.Minute))
	s.Require().NoError(s.store.Save(ctx, session.New("b", "c", s.now), time.Hour))

	s.now = s.now.Add(2 * time.Minute)

	_, err := s.store.Get(ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(0, s.store.Sweep(), "expired entry already dropped on read")

	s.now = s.now.Add(2 * time.Hour)
	s.Equal(1, s.store.Sweep())
	s.Equal(0, s.store.Len())
}

func (s *InMemorySuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, session.New("a", "c", s.now), time.Hour))
	s.Require().NoError(s.store.Delete(ctx, "a"))

	_, err := s.store.Get(ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Delete(ctx, "missing"))
}

func (s *InMemorySuite) TestRunSweeperStopsWithContext() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.store.RunSweeper(ctx, time.Millisecond) }()
	cancel()
	s.NoError(<-done)
}
