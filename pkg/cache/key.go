package cache

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// VersionParam is the reserved query parameter carrying the cache version.
const VersionParam = "cf_edge_cache_ver"

// DefaultTrackingParams are click-id and campaign parameters that never
// change the rendered page.
var DefaultTrackingParams = []string{
	"fbclid",
	"gclid",
	"_ga",
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
	"utm_brand",
	"utm_name",
}

// KeyGenerator derives versioned cache keys from request URLs.
type KeyGenerator struct {
	// TrackingParams are removed from the query before keying.
	TrackingParams []string
}

// NewKeyGenerator returns a generator stripping DefaultTrackingParams plus extra.
func NewKeyGenerator(extra ...string) KeyGenerator {
	params := make([]string, 0, len(DefaultTrackingParams)+len(extra))
	params = append(params, DefaultTrackingParams...)
	params = append(params, extra...)
	return KeyGenerator{TrackingParams: params}
}

// Key returns the cache key for u at the given version.
// Format: scheme://host/path?<sorted query>&cf_edge_cache_ver=N
//
// Example:
//
//	https://example.com/page?cf_edge_cache_ver=3
//
// A negative version means no durable store is configured and yields
// ErrNotConfigured.
func (g KeyGenerator) Key(u *url.URL, version int64) (string, error) {
	if version < 0 {
		return "", ErrNotConfigured
	}
	if u == nil || u.Host == "" {
		return "", fmt.Errorf("cache key needs an absolute url, got %v", u)
	}

	normalized := &url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   strings.ToLower(u.Path),
	}
	if normalized.Path == "" {
		normalized.Path = "/"
	}

	query := u.Query()
	for _, name := range g.TrackingParams {
		query.Del(name)
	}
	query.Set(VersionParam, strconv.FormatInt(version, 10))
	// Encode sorts by parameter name, so the key does not depend on the
	// order parameters arrived in.
	normalized.RawQuery = query.Encode()

	return normalized.String(), nil
}
