// Copyright (c) 2026 Venlock. All rights reserved.

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/cache"
)

/*
TestMemoryStore_SetGet verifies the JSON round-trip and miss semantics.
*/
func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "record:1", record{Name: "alpha", Count: 3}, 0))

	var loaded record
	found, err := store.Get(ctx, "record:1", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alpha", loaded.Name)
	assert.Equal(t, 3, loaded.Count)

	// Miss returns found=false without error
	found, err = store.Get(ctx, "record:missing", &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

/*
TestMemoryStore_Expiry verifies lazy TTL eviction against the injected clock.
*/
func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "volatile", "v", 10*time.Second))

	exists, err := store.Exists(ctx, "volatile")
	require.NoError(t, err)
	assert.True(t, exists)

	// Exactly at the deadline the key is gone
	now = now.Add(10 * time.Second)
	exists, err = store.Exists(ctx, "volatile")
	require.NoError(t, err)
	assert.False(t, exists)
}

/*
TestMemoryStore_Increment verifies counter semantics and TTL-on-create.
*/
func TestMemoryStore_Increment(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	first, err := store.Increment(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	// Advance 30s: a second increment must preserve the original deadline,
	// not extend it.
	now = now.Add(30 * time.Second)
	second, err := store.Increment(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)

	// 31s later the original 60s window has elapsed; the counter restarts.
	now = now.Add(31 * time.Second)
	third, err := store.Increment(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third)
}

/*
TestMemoryStore_SearchAndRefresh covers pattern scans and sliding expiration.
*/
func TestMemoryStore_SearchAndRefresh(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "session:u1:a", "a", time.Minute))
	require.NoError(t, store.Set(ctx, "session:u1:b", "b", time.Minute))
	require.NoError(t, store.Set(ctx, "session:u2:c", "c", time.Minute))

	keys, err := store.SearchKeys(ctx, "session:u1:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session:u1:a", "session:u1:b"}, keys)

	// Refresh extends the deadline without touching the value
	require.NoError(t, store.Refresh(ctx, "session:u1:a", 10*time.Minute))
	now = now.Add(2 * time.Minute)

	exists, err := store.Exists(ctx, "session:u1:a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "session:u1:b")
	require.NoError(t, err)
	assert.False(t, exists)
}

/*
TestMemoryStore_PubSub verifies synchronous invalidation delivery.
*/
func TestMemoryStore_PubSub(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	var received []string
	require.NoError(t, store.SubscribeInvalidations(ctx, func(pattern string) {
		received = append(received, pattern)
	}))

	require.NoError(t, store.PublishInvalidation(ctx, "session:u1:*"))
	assert.Equal(t, []string{"session:u1:*"}, received)
}
