package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNotConfigured indicates no durable store backs the cache
	ErrNotConfigured = errors.New("cache store not configured")
)

// Store is a durable key-value store. Values are opaque bytes; a zero TTL
// means the value does not expire on its own.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// Incrementer is implemented by stores that can atomically increment a
// decimal counter. A missing key counts as zero.
type Incrementer interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Initializer is implemented by stores that can write a key only when it
// does not exist yet. SetNX reports whether the value was written.
type Initializer interface {
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	if !ok || (!item.expires.IsZero() && time.Now().After(item.expires)) {
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item
	return nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if item, ok := m.items[key]; ok {
		n, err := strconv.ParseInt(string(item.value), 10, 64)
		if err != nil {
			return 0, err
		}
		current = n
	}
	current++
	m.items[key] = memoryItem{value: []byte(strconv.FormatInt(current, 10))}
	return current, nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[key]; ok && (item.expires.IsZero() || time.Now().Before(item.expires)) {
		return false, nil
	}
	m.items[key] = memoryItem{value: append([]byte(nil), value...)}
	return true, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
