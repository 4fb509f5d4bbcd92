package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowStore keeps the fixed-window counters in Redis so every replica
// sees the same per-IP counts. INCR creates the counter, EXPIRE starts the
// window on first hit, and the TTL is the Retry-After hint.
type redisWindowStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newRedisWindowStore(addr, password string, db int, timeout time.Duration) *redisWindowStore {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisWindowStore{client: client, timeout: timeout}
}

func (s *redisWindowStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
		return count, window, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// A counter that lost its expiry would block the IP forever;
		// re-arm the window instead.
		_ = s.client.Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}

func (s *redisWindowStore) Close() error {
	return s.client.Close()
}
