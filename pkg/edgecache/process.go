package edgecache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Sternrassler/html-edge-cache/pkg/cache"
	"github.com/Sternrassler/html-edge-cache/pkg/directive"
)

// process runs one request through lookup and then the hit or miss path.
func (e *Engine) process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rs := e.newRequestState(r)

	entry, layer := e.lookup(ctx, rs)
	if entry != nil {
		e.serveHit(w, rs, entry, layer)
		return
	}
	e.serveMiss(ctx, w, rs)
}

// lookup returns the cached entry for rs, or nil. It never fails: store
// errors degrade to a miss with the error recorded in the status trail.
func (e *Engine) lookup(ctx context.Context, rs *requestState) (*cache.Entry, cache.Layer) {
	if wantsReload(rs.r) {
		rs.status.set(statusReload)
		lookupsTotal.WithLabelValues("reload").Inc()
		return nil, ""
	}
	if !rs.cacheableGET() {
		return nil, ""
	}

	ver, err := rs.resolveVersion(ctx, e.versions)
	if err != nil {
		e.readFailure(rs, err)
		return nil, ""
	}
	if e.cache == nil {
		return nil, ""
	}

	key, err := e.keys.Key(rs.url, ver)
	if errors.Is(err, cache.ErrNotConfigured) {
		return nil, ""
	}
	if err != nil {
		e.readFailure(rs, err)
		return nil, ""
	}

	entry, layer, err := e.cache.Lookup(ctx, key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		lookupsTotal.WithLabelValues("miss").Inc()
		rs.logger.Debug().Str("key", key).Msg("Cache miss")
		return nil, ""
	case err != nil:
		e.readFailure(rs, err)
		return nil, ""
	}

	d, present := directive.FromHeader(entry.Headers)
	if e.bypass.ShouldBypass(rs.cookies, d, present) {
		rs.status.set(statusBypass)
		rs.bypass = true
		lookupsTotal.WithLabelValues("bypass").Inc()
		rs.logger.Debug().Str("key", key).Msg("Cache bypassed for session cookie")
		return nil, ""
	}

	cache.RestoreHeaders(entry.Headers)
	rs.status.set(statusHit)
	lookupsTotal.WithLabelValues("hit").Inc()
	rs.logger.Debug().
		Str("key", key).
		Str("layer", string(layer)).
		Msg("Cache hit")
	return entry, layer
}

func (e *Engine) readFailure(rs *requestState, err error) {
	rs.status.set(statusReadFailure + err.Error())
	lookupsTotal.WithLabelValues("error").Inc()
	rs.logger.Warn().Err(err).Msg("Cache read failed, falling back to origin")
}

// serveHit writes a cached entry and, when the entry carries no origin
// directive, schedules a background refresh.
func (e *Engine) serveHit(w http.ResponseWriter, rs *requestState, entry *cache.Entry, layer cache.Layer) {
	rs.platformHit = true

	if rs.cacheableGET() && entry.StatusCode == http.StatusOK {
		// The origin did not speak the protocol when this copy was made, so
		// it may be serving its own stale disk cache.
		if _, present := directive.FromHeader(entry.Headers); !present {
			if key, err := e.keys.Key(rs.url, rs.version); err == nil {
				rs.status.add(statusRefreshed)
				e.scheduleRefresh(rs, key)
			}
		}
	}

	e.respond(w, rs, entry.StatusCode, entry.Headers, bytes.NewReader(entry.Body), int64(len(entry.Body)), layer)
}

// serveMiss forwards the request to the origin, applies the origin's
// directive and streams the answer back.
func (e *Engine) serveMiss(ctx context.Context, w http.ResponseWriter, rs *requestState) {
	resp, err := e.origin.Forward(ctx, rs.r)
	if err != nil {
		rs.logger.Error().Err(err).Str("path", rs.r.URL.Path).Msg("Origin fetch failed")
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	d, present := directive.FromHeader(resp.Header)
	if present {
		rs.logger.Debug().
			Str("directive", d.String()).
			Int("status", resp.StatusCode).
			Msg("Origin sent edge directive")
	}
	if present && d.Purge && e.schedulePurge(ctx, rs) {
		rs.status.add(statusPurged)
	}

	rs.bypass = rs.bypass || e.bypass.ShouldBypass(rs.cookies, d, present)

	var (
		body   io.Reader = resp.Body
		length int64     = -1
	)
	if (!present || d.Cache) && rs.cacheableGET() && resp.StatusCode == http.StatusOK && !rs.bypass {
		buf, complete, err := readBody(resp.Body, e.config.MaxBodyBytes)
		if err != nil {
			rs.logger.Error().Err(err).Str("path", rs.r.URL.Path).Msg("Reading origin body failed")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		if complete {
			if step := e.store(ctx, rs, resp.StatusCode, resp.Header, buf); step != "" {
				rs.status.add(step)
			}
			body, length = bytes.NewReader(buf), int64(len(buf))
		} else {
			rs.logger.Debug().Int64("limit", e.config.MaxBodyBytes).Msg("Response too large to cache")
			body = io.MultiReader(bytes.NewReader(buf), resp.Body)
		}
	}

	e.respond(w, rs, resp.StatusCode, resp.Header, body, length, "")
}

// readBody reads up to limit bytes. complete is false when the body is
// larger than limit; the bytes read so far are returned either way.
func readBody(r io.Reader, limit int64) (buf []byte, complete bool, err error) {
	buf, err = io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return buf, false, err
	}
	if int64(len(buf)) > limit {
		return buf, false, nil
	}
	return buf, true, nil
}
