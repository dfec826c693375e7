// Copyright (c) 2026 Venlock. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// invalidationChannel is the pub/sub channel invalidation patterns travel on.
const invalidationChannel = "venlock:cache:invalidate"

// RedisStore implements [Store] using go-redis.
//
// Values are JSON-encoded; counters rely on Redis storing integers as plain
// strings, which INCR understands natively and json.Unmarshal decodes back
// into int64.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed [Store].
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

/*
Set stores a JSON-encoded value with an optional TTL.

Parameters:
  - ctx: context.Context
  - key: string
  - value: any (JSON-encodable)
  - ttl: time.Duration (0 = no expiry)

Returns:
  - error: Encoding failures or connectivity errors wrapping ErrUnavailable
*/
func (store *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %q: %w", key, err)
	}

	if err := store.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

/*
Get decodes the value at key into target.

Returns:
  - bool: false when the key does not exist
  - error: Decoding failures or connectivity errors wrapping ErrUnavailable
*/
func (store *RedisStore) Get(ctx context.Context, key string, target any) (bool, error) {
	payload, err := store.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable("get", err)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return false, fmt.Errorf("cache: failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Remove deletes the key. Absent keys are not an error.
func (store *RedisStore) Remove(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return unavailable("remove", err)
	}
	return nil
}

// Exists reports whether the key is present.
func (store *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := store.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return count > 0, nil
}

/*
Increment atomically increments the counter at key.

Description: INCR and ExpireNX run in one MULTI/EXEC pipeline. ExpireNX only
sets the TTL when the key has none, which is exactly the "apply ttlOnCreate,
preserve existing TTL" contract without a read-modify-write race.

Returns:
  - int64: The counter value after the increment
  - error: Connectivity errors wrapping ErrUnavailable
*/
func (store *RedisStore) Increment(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error) {
	pipeline := store.client.TxPipeline()
	counter := pipeline.Incr(ctx, key)
	if ttlOnCreate > 0 {
		pipeline.ExpireNX(ctx, key, ttlOnCreate)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		return 0, unavailable("increment", err)
	}
	return counter.Val(), nil
}

/*
SearchKeys returns all keys matching the glob pattern.

Description: Uses cursor-based SCAN rather than KEYS so large keyspaces never
block the server. Used only on the bulk-revocation and admin paths.
*/
func (store *RedisStore) SearchKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string

	iterator := store.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iterator.Next(ctx) {
		keys = append(keys, iterator.Val())
	}
	if err := iterator.Err(); err != nil {
		return nil, unavailable("scan", err)
	}

	return keys, nil
}

// Refresh extends the TTL without rewriting the value (sliding expiration).
func (store *RedisStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	if err := store.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable("refresh", err)
	}
	return nil
}

// PublishInvalidation broadcasts a key pattern to all cluster subscribers.
func (store *RedisStore) PublishInvalidation(ctx context.Context, pattern string) error {
	if err := store.client.Publish(ctx, invalidationChannel, pattern).Err(); err != nil {
		return unavailable("publish", err)
	}
	return nil
}

/*
SubscribeInvalidations registers a handler for invalidation messages.

Description: A dedicated goroutine drains the subscription and invokes the
handler for each received pattern. The goroutine exits when ctx is cancelled.
*/
func (store *RedisStore) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	pubsub := store.client.Subscribe(ctx, invalidationChannel)

	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return unavailable("subscribe", err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		channel := pubsub.Channel()
		for {
			select {
			case message, ok := <-channel:
				if !ok {
					return
				}
				handler(message.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// unavailable wraps a transport-level Redis error so callers can detect the
// condition with errors.Is(err, ErrUnavailable).
func unavailable(operation string, err error) error {
	return fmt.Errorf("cache: %s failed: %w: %v", operation, ErrUnavailable, err)
}
