// Package cache holds Redis-backed helpers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore remembers the result of a request keyed by a client-supplied
// idempotency key so that a retried request does not repeat its side effects.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string {
	return "idemp:" + scope + ":" + key
}

func resultKey(scope, key string) string {
	return "idemp:map:" + scope + ":" + key
}

// TryLock reports whether the caller is the first to claim the key.
func (s *RedisIdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lock: %w", err)
	}
	return ok, nil
}

// Release drops a claim whose request failed so the client can retry it.
func (s *RedisIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	if err := s.rdb.Set(ctx, resultKey(scope, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, resultKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency recall: %w", err)
	}
	return val, true, nil
}

func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
