// Package version implements the shared cache version counter. Every
// cache key embeds the current version; bumping it invalidates all HTML
// cached under older versions without deleting anything.
package version

import (
	"time"
)

// DefaultKey is the store key holding the counter.
const DefaultKey = "html_cache_version"

// Unconfigured is returned as the version when no store backs the counter.
// It disables caching entirely.
const Unconfigured int64 = -1

// DefaultTTL is how long a process trusts its cached copy of the counter.
const DefaultTTL = 10 * time.Second

// DefaultReadTimeout bounds a single read of the counter from the store.
const DefaultReadTimeout = 2 * time.Second

// Snapshot is a process-local view of the counter.
type Snapshot struct {
	// Value is the last version read from or written to the store.
	Value int64

	// FetchedAt is when Value was obtained.
	FetchedAt time.Time
}

// IsStale returns true if the snapshot is older than maxAge.
func (s Snapshot) IsStale(maxAge time.Duration) bool {
	return s.FetchedAt.IsZero() || time.Since(s.FetchedAt) > maxAge
}
