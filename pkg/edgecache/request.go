package edgecache

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/bypass"
	"github.com/Sternrassler/html-edge-cache/pkg/directive"
	"github.com/Sternrassler/html-edge-cache/pkg/logging"
	"github.com/Sternrassler/html-edge-cache/pkg/version"
)

// staticExtensions are never HTML and are passed straight through.
var staticExtensions = map[string]struct{}{
	".txt": {}, ".xml": {}, ".json": {}, ".rss": {}, ".js": {}, ".css": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".pdf": {},
	".mp4": {}, ".mp3": {}, ".webm": {},
}

// handles reports whether r goes through the cache engine at all.
func (e *Engine) handles(r *http.Request) bool {
	if !e.Configured() {
		return false
	}
	if strings.Contains(r.Header.Get("Accept"), "image/*") {
		return false
	}
	if _, static := staticExtensions[strings.ToLower(path.Ext(r.URL.Path))]; static {
		return false
	}
	// An outer edge cache already speaks the protocol; only the outermost
	// one handles HTML.
	if _, upstream := r.Header[http.CanonicalHeaderKey(directive.HeaderName)]; upstream {
		return false
	}
	return true
}

// acceptsHTML reports whether r asks for an HTML page.
func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html") || isPrefetch(r.Header)
}

func isPrefetch(h http.Header) bool {
	for _, name := range []string{"Purpose", "X-Purpose", "X-Moz"} {
		if strings.EqualFold(h.Get(name), "prefetch") {
			return true
		}
	}
	return false
}

// wantsReload reports whether the client asked to skip caches.
func wantsReload(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Cache-Control"), "no-cache")
}

// absoluteURL reconstructs the URL the client asked for.
func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		u.Scheme = "https"
	}
	if r.Host != "" {
		u.Host = r.Host
	}
	return &u
}

// requestState is the per-request view shared by the engine steps.
type requestState struct {
	r       *http.Request
	url     *url.URL
	html    bool
	cookies string
	logger  zerolog.Logger

	status      statusTrail
	bypass      bool
	platformHit bool

	versionRead bool
	version     int64
	versionErr  error
}

func (e *Engine) newRequestState(r *http.Request) *requestState {
	return &requestState{
		r:       r,
		url:     absoluteURL(r),
		html:    acceptsHTML(r),
		cookies: bypass.CookieHeader(r.Header),
		logger:  e.requestLogger(r),
		status:  newStatusTrail(),
	}
}

// cacheableGET reports whether the request is an HTML GET.
func (rs *requestState) cacheableGET() bool {
	return rs.r.Method == http.MethodGet && rs.html
}

// resolveVersion reads the cache version at most once per request.
func (rs *requestState) resolveVersion(ctx context.Context, counter *version.Counter) (int64, error) {
	if !rs.versionRead {
		rs.version, rs.versionErr = counter.Current(ctx)
		rs.versionRead = true
	}
	return rs.version, rs.versionErr
}

func (e *Engine) requestLogger(r *http.Request) zerolog.Logger {
	return logging.FromContext(r.Context(), e.logger)
}
