package edgecache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/html-edge-cache/pkg/cache"
	"github.com/Sternrassler/html-edge-cache/pkg/directive"
	"github.com/Sternrassler/html-edge-cache/pkg/version"
)

// spawn runs fn in the background on a context detached from the
// request's cancellation but keeping its values. Tasks are tracked so
// Close can wait for them.
func (e *Engine) spawn(rs *requestState, task string, fn func(ctx context.Context) error) {
	parent := context.WithoutCancel(rs.r.Context())
	logger := rs.logger

	e.tasks.Add(1)
	backgroundTasks.Inc()
	go func() {
		defer e.tasks.Done()
		defer backgroundTasks.Dec()
		defer func() {
			if p := recover(); p != nil {
				backgroundErrors.WithLabelValues(task).Inc()
				logger.Error().Interface("panic", p).Str("task", task).Msg("Background cache task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(parent, e.config.BackgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			backgroundErrors.WithLabelValues(task).Inc()
			logger.Warn().Err(err).Str("task", task).Msg("Background cache task failed")
			return
		}
		logger.Debug().Str("task", task).Msg("Background cache task finished")
	}()
}

// schedulePurge starts a purge in the background. It returns false when
// no purge strategy is configured.
func (e *Engine) schedulePurge(ctx context.Context, rs *requestState) bool {
	if e.purger == nil {
		rs.logger.Warn().Msg("Origin requested a purge but no purge strategy is configured")
		return false
	}

	current := version.Unconfigured
	if ver, err := rs.resolveVersion(ctx, e.versions); err == nil {
		current = ver
	}

	purger, manager := e.purger, e.cache
	e.spawn(rs, "purge", func(ctx context.Context) error {
		if err := purger.Purge(ctx, current); err != nil {
			return err
		}
		if manager != nil {
			manager.DropLocal()
		}
		return nil
	})
	return true
}

// store prepares an origin response for the cache and hands the write to
// the background. It returns the status trail step to record, if any.
func (e *Engine) store(ctx context.Context, rs *requestState, statusCode int, header http.Header, body []byte) string {
	if e.cache == nil {
		return ""
	}

	ver, err := rs.resolveVersion(ctx, e.versions)
	if err != nil {
		return e.writeFailure(rs, err)
	}
	key, err := e.keys.Key(rs.url, ver)
	if err != nil {
		return e.writeFailure(rs, err)
	}

	entry := cache.NewEntry(statusCode, header, body)
	data, err := cache.Encode(entry)
	if err != nil {
		return e.writeFailure(rs, err)
	}

	manager := e.cache
	e.spawn(rs, "store", func(ctx context.Context) error {
		if err := manager.SaveEncoded(ctx, key, entry, data); err != nil {
			writesTotal.WithLabelValues("error").Inc()
			return err
		}
		writesTotal.WithLabelValues("success").Inc()
		return nil
	})
	return statusCached
}

func (e *Engine) writeFailure(rs *requestState, err error) string {
	writesTotal.WithLabelValues("error").Inc()
	rs.logger.Warn().Err(err).Msg("Cache write skipped")
	if e.config.ReportWriteErrors {
		return statusWriteFail + err.Error()
	}
	return ""
}

// scheduleRefresh re-fetches the page behind a served hit and stores the
// fresh copy for the next request.
func (e *Engine) scheduleRefresh(rs *requestState, key string) {
	req := rs.r.Clone(context.WithoutCancel(rs.r.Context()))
	req.Body = http.NoBody
	req.ContentLength = 0
	cookies := rs.cookies
	current := rs.version

	e.spawn(rs, "refresh", func(ctx context.Context) error {
		err := e.refresh(ctx, req.WithContext(ctx), key, cookies, current)
		if err != nil {
			refreshesTotal.WithLabelValues("error").Inc()
		}
		return err
	})
}

// refresh applies the miss-path purge and store decisions to a fresh
// origin response.
func (e *Engine) refresh(ctx context.Context, req *http.Request, key, cookies string, current int64) error {
	resp, err := e.origin.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	d, present := directive.FromHeader(resp.Header)
	if present && d.Purge && e.purger != nil {
		if err := e.purger.Purge(ctx, current); err != nil {
			return fmt.Errorf("purge during refresh: %w", err)
		}
	}

	if (present && !d.Cache) || resp.StatusCode != http.StatusOK || e.bypass.ShouldBypass(cookies, d, present) {
		refreshesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	body, complete, err := readBody(resp.Body, e.config.MaxBodyBytes)
	if err != nil {
		return fmt.Errorf("read refreshed body: %w", err)
	}
	if !complete {
		refreshesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	if err := e.cache.Save(ctx, key, cache.NewEntry(resp.StatusCode, resp.Header, body)); err != nil {
		writesTotal.WithLabelValues("error").Inc()
		return err
	}
	writesTotal.WithLabelValues("success").Inc()
	refreshesTotal.WithLabelValues("success").Inc()
	return nil
}
