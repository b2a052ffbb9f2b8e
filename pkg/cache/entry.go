package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Entry represents a cached HTML response.
type Entry struct {
	// Body is the response body
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the stored response headers, with cache headers parked
	// under the internal namespace (see ParkHeaders).
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Clone returns a deep copy of the entry, so that callers can restore
// headers without touching the copy held by the local cache.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return &Entry{
		Body:       body,
		StatusCode: e.StatusCode,
		Headers:    e.Headers.Clone(),
		CachedAt:   e.CachedAt,
	}
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

// Encode serializes the entry for a durable store.
func Encode(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// Decode parses an entry previously produced by Encode.
func Decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Headers == nil {
		entry.Headers = http.Header{}
	}
	return &entry, nil
}
