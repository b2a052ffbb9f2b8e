// Package bypass decides whether a request's cookies indicate a logged-in
// or otherwise personalised session that must not be served from cache.
package bypass

import (
	"net/http"
	"strings"

	"github.com/Sternrassler/html-edge-cache/pkg/directive"
)

// DefaultPrefixes are the cookie name prefixes used when the origin sent
// no directive.
var DefaultPrefixes = []string{"wp-", "wordpress", "comment_", "woocommerce_"}

// DefaultAllowList holds cookie names that match a prefix but never mark
// a personalised session.
var DefaultAllowList = []string{"wordpress_eli", "wordpress_test_cookie"}

// Evaluator applies bypass prefixes to request cookies.
type Evaluator struct {
	prefixes []string
	allow    map[string]struct{}
}

// NewEvaluator returns an evaluator with the given default prefixes. A nil
// slice selects DefaultPrefixes.
func NewEvaluator(prefixes []string) Evaluator {
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	allow := make(map[string]struct{}, len(DefaultAllowList))
	for _, name := range DefaultAllowList {
		allow[name] = struct{}{}
	}
	return Evaluator{prefixes: prefixes, allow: allow}
}

// Prefixes returns the prefix list in force: the directive's own list
// when one was present, otherwise the defaults.
func (e Evaluator) Prefixes(d directive.Directive, present bool) []string {
	if present {
		return d.BypassCookies
	}
	return e.prefixes
}

// ShouldBypass reports whether cookieHeader contains a cookie whose name
// starts with one of the prefixes in force.
func (e Evaluator) ShouldBypass(cookieHeader string, d directive.Directive, present bool) bool {
	prefixes := e.Prefixes(d, present)
	if cookieHeader == "" || len(prefixes) == 0 {
		return false
	}

	for _, pair := range strings.Split(cookieHeader, ";") {
		name, _, _ := strings.Cut(strings.TrimSpace(pair), "=")
		if name == "" {
			continue
		}
		if _, ok := e.allow[name]; ok {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
	}
	return false
}

// CookieHeader joins every Cookie header line of h.
func CookieHeader(h http.Header) string {
	return strings.Join(h.Values("Cookie"), "; ")
}
