// Package directive parses the X-HTML-Edge-Cache header an origin uses to
// control the edge cache, and defines the capability header sent to it.
package directive

import (
	"net/http"
	"strings"
)

const (
	// HeaderName carries both the edge's capability advertisement on
	// requests and the origin's directives on responses.
	HeaderName = "X-HTML-Edge-Cache"

	// Capabilities is the value advertised to the origin on forwarded requests.
	Capabilities = "supports=cache|purgeall|bypass-cookies"

	tokenPurge  = "purgeall"
	tokenCache  = "cache"
	tokenBypass = "bypass-cookies"
)

// Directive is the parsed form of an origin's X-HTML-Edge-Cache header.
type Directive struct {
	// Purge requests invalidation of all cached HTML.
	Purge bool
	// Cache allows this response to be stored.
	Cache bool
	// BypassCookies lists cookie name prefixes that disable caching for a
	// request. It replaces the default list whenever the header is present.
	BypassCookies []string
}

// Parse parses a comma-separated directive value. Unknown tokens are
// ignored; an empty value yields the zero Directive.
func Parse(value string) Directive {
	var d Directive
	for _, raw := range strings.Split(value, ",") {
		token := strings.TrimSpace(raw)
		switch {
		case token == tokenPurge:
			d.Purge = true
		case token == tokenCache:
			d.Cache = true
		case strings.HasPrefix(token, tokenBypass):
			name, list, ok := strings.Cut(token, "=")
			if !ok || strings.TrimSpace(name) != tokenBypass {
				continue
			}
			for _, prefix := range strings.Split(list, "|") {
				if prefix = strings.TrimSpace(prefix); prefix != "" {
					d.BypassCookies = append(d.BypassCookies, prefix)
				}
			}
		}
	}
	return d
}

// FromHeader returns the directive carried by h and whether one was
// present. A missing or empty header is absent; a present header without
// the cache token forbids caching.
func FromHeader(h http.Header) (Directive, bool) {
	value := strings.TrimSpace(h.Get(HeaderName))
	if value == "" {
		return Directive{}, false
	}
	return Parse(value), true
}

// String encodes d in header form.
func (d Directive) String() string {
	var tokens []string
	if d.Purge {
		tokens = append(tokens, tokenPurge)
	}
	if d.Cache {
		tokens = append(tokens, tokenCache)
	}
	if len(d.BypassCookies) > 0 {
		tokens = append(tokens, tokenBypass+"="+strings.Join(d.BypassCookies, "|"))
	}
	return strings.Join(tokens, ",")
}
