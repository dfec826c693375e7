// Copyright (c) 2026 Venlock. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements [Store] with a process-local map.
//
// It exists for unit tests of the session store, the token service, and the
// throttle engine. Expiry is evaluated lazily on access against the injected
// clock, so tests can advance time deterministically.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	handlers []InvalidationHandler

	// Now is the clock. Tests overwrite it to control expiry and penalties.
	Now func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time // zero = no expiry
}

// NewMemoryStore creates an empty in-memory [Store].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

// Set stores a JSON-encoded value with an optional TTL.
func (store *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %q: %w", key, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries[key] = memoryEntry{payload: payload, expiresAt: store.deadline(ttl)}
	return nil
}

// Get decodes the value at key into target. Returns (false, nil) on a miss.
func (store *MemoryStore) Get(ctx context.Context, key string, target any) (bool, error) {
	store.mu.Lock()
	entry, alive := store.lookup(key)
	store.mu.Unlock()

	if !alive {
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, target); err != nil {
		return false, fmt.Errorf("cache: failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Remove deletes the key.
func (store *MemoryStore) Remove(ctx context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.entries, key)
	return nil
}

// Exists reports whether the key is present and unexpired.
func (store *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, alive := store.lookup(key)
	return alive, nil
}

// Increment atomically increments the counter at key, applying ttlOnCreate
// only when the key is newly created.
func (store *MemoryStore) Increment(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var counter int64
	entry, alive := store.lookup(key)
	expiresAt := store.deadline(ttlOnCreate)

	if alive {
		parsed, err := strconv.ParseInt(string(entry.payload), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache: key %q is not a counter", key)
		}
		counter = parsed
		expiresAt = entry.expiresAt // preserve the existing TTL
	}

	counter++
	store.entries[key] = memoryEntry{
		payload:   []byte(strconv.FormatInt(counter, 10)),
		expiresAt: expiresAt,
	}
	return counter, nil
}

// SearchKeys returns all live keys matching the glob pattern.
func (store *MemoryStore) SearchKeys(ctx context.Context, pattern string) ([]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var keys []string
	for key := range store.entries {
		if _, alive := store.lookup(key); !alive {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Refresh extends the TTL of a live key without rewriting its value.
func (store *MemoryStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, alive := store.lookup(key)
	if !alive {
		return nil
	}
	entry.expiresAt = store.deadline(ttl)
	store.entries[key] = entry
	return nil
}

// PublishInvalidation invokes every registered handler synchronously.
func (store *MemoryStore) PublishInvalidation(ctx context.Context, pattern string) error {
	store.mu.Lock()
	handlers := make([]InvalidationHandler, len(store.handlers))
	copy(handlers, store.handlers)
	store.mu.Unlock()

	for _, handler := range handlers {
		handler(pattern)
	}
	return nil
}

// SubscribeInvalidations registers a handler for published patterns.
func (store *MemoryStore) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.handlers = append(store.handlers, handler)
	return nil
}

// lookup returns the entry at key after lazily evicting it if expired.
// Caller must hold the mutex.
func (store *MemoryStore) lookup(key string) (memoryEntry, bool) {
	entry, found := store.entries[key]
	if !found {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !store.Now().Before(entry.expiresAt) {
		delete(store.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// deadline converts a TTL into an absolute expiry instant (zero for no TTL).
func (store *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return store.Now().Add(ttl)
}
