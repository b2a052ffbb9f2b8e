package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalCache is a bounded, per-process mirror of recently used entries.
// Entries expire after a TTL so a soft purge propagates to every process
// within that window even though old keys are never deleted.
type LocalCache struct {
	lru *expirable.LRU[string, *Entry]
}

// NewLocalCache creates a local cache holding at most size entries for ttl.
func NewLocalCache(size int, ttl time.Duration) *LocalCache {
	if size <= 0 {
		size = 1
	}
	return &LocalCache{lru: expirable.NewLRU[string, *Entry](size, nil, ttl)}
}

// Get returns a copy of the entry under key.
func (c *LocalCache) Get(key string) (*Entry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Add stores a private copy of entry under key.
func (c *LocalCache) Add(key string, entry *Entry) {
	c.lru.Add(key, entry.Clone())
	LocalEntries.Set(float64(c.lru.Len()))
}

// Len returns the number of live entries.
func (c *LocalCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *LocalCache) Purge() {
	c.lru.Purge()
	LocalEntries.Set(0)
}
