package cache

import (
	"net/http"
	"time"
)

const (
	// ParkedHeaderPrefix is the internal namespace cache headers are moved
	// into while a response sits in the store.
	ParkedHeaderPrefix = "X-HTML-Edge-Cache-Header-"

	// StoredCacheControl is set on stored copies so intermediate caches keep them.
	StoredCacheControl = "public, max-age=315360000"

	// StatusHeader and VersionHeader are the diagnostic headers added to responses.
	StatusHeader  = "X-HTML-Edge-Cache-Status"
	VersionHeader = "X-HTML-Edge-Cache-Version"
)

// ParkedHeaders are the cache-control family headers relocated on store.
var ParkedHeaders = []string{"Cache-Control", "Expires", "Pragma"}

// strippedHeaders never reach the store: session cookies, per-hop and
// per-request diagnostics.
var strippedHeaders = []string{
	"Set-Cookie",
	"CF-Cache-Status",
	"CF-Ray",
	"CF-Request-Id",
	"X-Request-Id",
	"Connection",
	"Expect-CT",
	"Server",
	"Content-Length",
	"Transfer-Encoding",
	StatusHeader,
	VersionHeader,
}

// ParkHeaders returns the header set to persist for an origin response.
// The input is left untouched.
func ParkHeaders(h http.Header) http.Header {
	stored := h.Clone()
	if stored == nil {
		stored = http.Header{}
	}
	for _, name := range ParkedHeaders {
		if value := stored.Get(name); value != "" {
			stored.Del(name)
			stored.Set(ParkedHeaderPrefix+name, value)
		}
	}
	for _, name := range strippedHeaders {
		stored.Del(name)
	}
	stored.Set("Cache-Control", StoredCacheControl)
	return stored
}

// RestoreHeaders is the inverse of ParkHeaders, applied in place on a
// clean cache hit.
func RestoreHeaders(h http.Header) {
	h.Del("Cache-Control")
	h.Del(StatusHeader)
	for _, name := range ParkedHeaders {
		value := h.Get(ParkedHeaderPrefix + name)
		if value == "" {
			continue
		}
		h.Del(ParkedHeaderPrefix + name)
		h.Set(name, value)
	}
}

// NewEntry builds a storable entry from an origin response that has
// already been read into body.
func NewEntry(statusCode int, header http.Header, body []byte) *Entry {
	return &Entry{
		Body:       body,
		StatusCode: statusCode,
		Headers:    ParkHeaders(header),
		CachedAt:   time.Now(),
	}
}
