package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"scormrelay/internal/types"
)

const keyPrefix = "scormrelay:ratelimit:"

// Connect builds a client from a redis:// URL or a bare host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore shares counters across instances. The first request of a
// window sets the expiry; later requests only increment.
type RedisStore struct {
	client redis.Cmdable
	clock  types.Clock
}

func NewRedisStore(client redis.Cmdable, clock types.Clock) *RedisStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &RedisStore{client: client, clock: clock}
}

func (s *RedisStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	redisKey := keyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.ExpireNX(ctx, redisKey, window)
		ttl = p.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	return result(incr.Val(), limit, s.resetAt(ttl.Val(), window)), nil
}

func (s *RedisStore) resetAt(ttl, window time.Duration) time.Time {
	// PTTL reports -1 (no expiry) or -2 (missing) as negative durations.
	if ttl <= 0 {
		ttl = window
	}
	return s.clock.Now().Add(ttl)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
