package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Layer identifies where a cached entry was found.
type Layer string

const (
	LayerLocal Layer = "local"
	LayerStore Layer = "store"
)

// Manager reads and writes cache entries through the local fast cache and
// a durable Store. The local cache is optional.
type Manager struct {
	store  Store
	local  *LocalCache
	ttl    time.Duration
	logger zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLocalCache mirrors entries in an in-process LRU in front of the store.
func WithLocalCache(local *LocalCache) ManagerOption {
	return func(m *Manager) { m.local = local }
}

// WithEntryTTL sets the durable store TTL. Zero keeps entries until the
// backend evicts them.
func WithEntryTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithLogger sets the logger used for degraded cache operations.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a cache manager backed by store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	m := &Manager{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the durable store behind the manager.
func (m *Manager) Store() Store {
	return m.store
}

// DropLocal empties the local cache. Callers use it after a purge so this
// node stops serving copies the purge invalidated.
func (m *Manager) DropLocal() {
	if m.local != nil {
		m.local.Purge()
	}
}

// Lookup returns a copy of the entry stored under key and the layer that
// served it. Returns ErrCacheMiss if neither layer holds the key.
func (m *Manager) Lookup(ctx context.Context, key string) (*Entry, Layer, error) {
	if m.local != nil {
		if entry, ok := m.local.Get(key); ok {
			CacheHits.WithLabelValues(string(LayerLocal)).Inc()
			return entry, LayerLocal, nil
		}
	}

	data, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return nil, "", ErrCacheMiss
		}
		StoreErrors.WithLabelValues("get").Inc()
		return nil, "", fmt.Errorf("store get: %w", err)
	}

	entry, err := Decode(data)
	if err != nil {
		StoreErrors.WithLabelValues("decode").Inc()
		return nil, "", err
	}

	if m.local != nil {
		m.local.Add(key, entry)
	}
	CacheHits.WithLabelValues(string(LayerStore)).Inc()
	return entry.Clone(), LayerStore, nil
}

// Save encodes entry and writes it to the store, then mirrors it locally.
func (m *Manager) Save(ctx context.Context, key string, entry *Entry) error {
	data, err := Encode(entry)
	if err != nil {
		StoreErrors.WithLabelValues("encode").Inc()
		return err
	}
	return m.SaveEncoded(ctx, key, entry, data)
}

// SaveEncoded writes an entry already serialized with Encode. It lets
// callers surface encoding failures before handing the write off.
func (m *Manager) SaveEncoded(ctx context.Context, key string, entry *Entry, data []byte) error {
	if err := m.store.Set(ctx, key, data, m.ttl); err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("store set: %w", err)
	}
	if m.local != nil {
		m.local.Add(key, entry)
	}
	StoredBytes.Add(float64(len(data)))

	m.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Cache entry stored")
	return nil
}
