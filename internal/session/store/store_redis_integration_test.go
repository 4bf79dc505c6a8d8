//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"formvault/internal/session"
	"formvault/internal/session/store"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	sess := session.New("abc", "csrf", time.Now().UTC().Truncate(time.Second))
	s.Require().NoError(sess.MarkRegistered(5))
	s.Require().NoError(sess.MarkTokenized("tok"))
	sess.AddFlash("hello")
	s.Require().NoError(s.store.Save(ctx, sess, time.Hour))

	got, err := s.store.Get(ctx, "abc")
	s.Require().NoError(err)
	s.Equal(session.StateTokenized, got.State)
	s.Equal("tok", got.Token)
	s.Zero(got.SubmissionID)
	s.Equal([]string{"hello"}, got.Flashes)
	s.Equal("csrf", got.CSRFToken)
	s.False(got.Dirty())
}

func (s *RedisStoreSuite) TestTTLApplied() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, session.New("ttl", "c", time.Now()), 30*time.Minute))

	ttl, err := s.redis.Client.TTL(ctx, "formvault:session:ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 29*time.Minute)
	s.LessOrEqual(ttl, 30*time.Minute)
}

func (s *RedisStoreSuite) TestMissingAndDeleted() {
	ctx := context.Background()
	_, err := s.store.Get(ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Save(ctx, session.New("gone", "c", time.Now()), time.Hour))
	s.Require().NoError(s.store.Delete(ctx, "gone"))
	_, err = s.store.Get(ctx, "gone")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
