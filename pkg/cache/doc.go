// Package cache provides the storage side of the HTML edge cache.
//
// The package is organised in three parts:
//
//   - Durable stores implementing Store: RedisStore, SQLiteStore,
//     LevelDBStore and MemoryStore. Stores deal in opaque bytes and may
//     implement Incrementer for atomic counters.
//   - The Manager, which layers an optional LocalCache (expiring LRU) in
//     front of a Store and handles the Entry codec.
//   - Helpers for cache keys (KeyGenerator) and for relocating
//     cache-control headers on the way in and out of the store
//     (ParkHeaders, RestoreHeaders).
//
// # Basic Usage
//
//	store, err := cache.OpenRedisStore("redis://localhost:6379/0")
//	if err != nil {
//		return err
//	}
//	manager := cache.NewManager(store,
//		cache.WithLocalCache(cache.NewLocalCache(1024, time.Minute)))
//
//	key, err := cache.NewKeyGenerator().Key(requestURL, version)
//	if err != nil {
//		return err
//	}
//
//	entry, layer, err := manager.Lookup(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from origin, then:
//		entry = cache.NewEntry(resp.StatusCode, resp.Header, body)
//		err = manager.Save(ctx, key, entry)
//	}
//
// # Keys and Versions
//
// Keys embed the current cache version as the cf_edge_cache_ver query
// parameter. Bumping the version makes every existing entry unreachable
// without deleting anything; stale keys age out through the backend's own
// eviction or the configured entry TTL.
//
// # Metrics
//
// The following Prometheus metrics are exposed:
//
//   - edge_cache_hits_total{layer} - Hits by layer (local, store)
//   - edge_cache_misses_total - Lookups that found nothing
//   - edge_cache_stored_bytes_total - Bytes written to the store
//   - edge_cache_local_entries - Entries held in the local cache
//   - edge_cache_store_errors_total{operation} - Store errors by operation
package cache
