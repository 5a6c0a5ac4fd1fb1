package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyKeyHeader carries a client generated key identifying one
// drag-end request across retries.
const IdempotencyKeyHeader = "Idempotency-Key"

// RedisDeduper stores seen idempotency keys in Redis so every replica
// rejects a replayed drag-end.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return "dragend:" + userID + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove forgets a key, used when a move was not applied so the client may
// retry it.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
