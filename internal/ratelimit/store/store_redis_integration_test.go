//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formvault/pkg/testutil/containers"
)

func TestRedisFixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	now := time.Now().Truncate(time.Minute).Add(5 * time.Second)
	s := NewRedis(rc.Client)
	s.now = func() time.Time { return now }

	for i := range 2 {
		res, err := s.Allow(ctx, "register:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1-i, res.Remaining)
		assert.Equal(t, now.Truncate(time.Minute).Add(time.Minute), res.ResetAt)
	}

	res, err := s.Allow(ctx, "register:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = s.Allow(ctx, "register:10.0.0.2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other keys are unaffected")

	keys, err := rc.Client.Keys(ctx, keyPrefix+"*").Result()
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	ttl, err := rc.Client.TTL(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl, "window keys expire")

	now = now.Add(time.Minute)
	res, err = s.Allow(ctx, "register:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "next window starts fresh")
}
