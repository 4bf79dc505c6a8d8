package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"formvault/internal/ratelimit"
	"formvault/pkg/platform/sentinel"
)

const keyPrefix = "formvault:ratelimit:"

// Redis is a fixed window counter shared by every instance using the same
// Redis. Each window gets its own key that expires with the window.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (s *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now()
	start := now.Truncate(window)
	resetAt := start.Add(window)
	redisKey := keyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireAt(ctx, redisKey, resetAt)
		return nil
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("rate limit %s: %w", key, err), sentinel.ErrUnavailable)
	}

	count := int(incr.Val())
	if count > limit {
		return &ratelimit.Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return &ratelimit.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}, nil
}
