// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package cache defines the key-value store contract shared by the session
store, the throttle engine, and the volatile token repositories.

It abstracts a Redis-like store behind a narrow interface so that domain
packages never import a Redis client directly, and unit tests can run against
the in-memory implementation.

Architecture:

  - Store: The typed get/set contract with TTL, atomic increment, pattern
    scan, sliding expiration, and best-effort pub/sub invalidation.
  - RedisStore: Production implementation backed by go-redis.
  - MemoryStore: Process-local implementation for tests.

Failure semantics: operations fail with an error wrapping [ErrUnavailable]
when the backing store is unreachable. Callers on the auth and throttle paths
surface that failure instead of silently falling back to stale truth.
*/
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is wrapped by every operation that fails because the backing
// store cannot be reached.
var ErrUnavailable = errors.New("cache unavailable")

// InvalidationHandler receives the key pattern of a published invalidation.
// Handlers may be invoked on any node in a cluster.
type InvalidationHandler func(pattern string)

// Store is the key-value contract. All operations accept a context for
// cancellation; every write is idempotent so a cancelled request can never
// leave the store in a corrupt state.
type Store interface {

	// Set stores value under key, JSON-encoded. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get decodes the value at key into target.
	// Returns (false, nil) when the key does not exist.
	Get(ctx context.Context, key string, target any) (bool, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically increments the counter at key and returns the new
	// value. If the increment created the key, ttlOnCreate is applied;
	// otherwise the existing TTL is preserved.
	Increment(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error)

	// SearchKeys returns all keys matching the glob pattern using a
	// non-blocking cursor scan.
	SearchKeys(ctx context.Context, pattern string) ([]string, error)

	// Refresh extends the TTL of key without rewriting its value
	// (sliding expiration). Refreshing an absent key is a no-op.
	Refresh(ctx context.Context, key string, ttl time.Duration) error

	// PublishInvalidation broadcasts a key pattern to all subscribers.
	// Best-effort: delivery is not guaranteed.
	PublishInvalidation(ctx context.Context, pattern string) error

	// SubscribeInvalidations registers a handler for invalidation messages.
	// The subscription lives until ctx is cancelled.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
}
