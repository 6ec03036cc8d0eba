package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StartGuard is the distributed idempotency check in front of workflow start.
// Acquire returns false when another evaluator already claimed the event;
// Release gives a claim back after a failed start so a retry of the event is
// not locked out for the claim's lifetime. The stores' unique idempotency key
// is the backstop; the guard keeps concurrent evaluators from racing to the
// insert in the first place.
type StartGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// NopGuard always acquires. Single-process deployments rely on store-level
// idempotency alone.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string) (bool, error) { return true, nil }
func (NopGuard) Release(context.Context, string) error         { return nil }

const defaultGuardTTL = 24 * time.Hour

// RedisStartGuard claims start keys with SETNX so only one evaluator across
// all processes starts a workflow for a given event.
type RedisStartGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStartGuard(client *redis.Client, ttl time.Duration) *RedisStartGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &RedisStartGuard{client: client, ttl: ttl}
}

func (g *RedisStartGuard) Acquire(ctx context.Context, key string) (bool, error) {
	acquired, err := g.client.SetNX(ctx, guardKey(key), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire start guard %s: %w", key, err)
	}
	return acquired, nil
}

func (g *RedisStartGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, guardKey(key)).Err(); err != nil {
		return fmt.Errorf("release start guard %s: %w", key, err)
	}
	return nil
}

func guardKey(key string) string {
	return "govern:workflow:start:" + key
}
