// Package edgecache is the HTML edge cache decision engine. Engine is an
// http.Handler placed in front of an origin: it serves HTML GETs from a
// versioned cache, forwards everything else, and lets the origin steer
// caching, purging and cookie bypass through the X-HTML-Edge-Cache header.
package edgecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/bypass"
	"github.com/Sternrassler/html-edge-cache/pkg/cache"
	"github.com/Sternrassler/html-edge-cache/pkg/logging"
	"github.com/Sternrassler/html-edge-cache/pkg/origin"
	"github.com/Sternrassler/html-edge-cache/pkg/purge"
	"github.com/Sternrassler/html-edge-cache/pkg/version"
)

const (
	// LayerHeader marks responses served from the local fast cache.
	LayerHeader = "X-HTML-Edge-Cache-Layer"

	// PlatformStatusHeader is the platform cache-status marker set on hits.
	PlatformStatusHeader = "CF-Cache-Status"
)

// Config holds the engine configuration.
type Config struct {
	// Origin forwards requests to the origin server (REQUIRED).
	Origin *origin.Client

	// Cache is the durable cache. Nil disables caching; purge directives
	// then go to Purger if one is set.
	Cache *cache.Manager

	// Versions is the cache version counter. Defaults to a counter over
	// Cache's store.
	Versions *version.Counter

	// Purger handles purgeall directives. Defaults to a version bump when
	// Cache is set.
	Purger purge.Purger

	// BypassPrefixes are the default bypass cookie prefixes. Nil selects
	// bypass.DefaultPrefixes.
	BypassPrefixes []string

	// TrackingParams are stripped from cache keys in addition to
	// cache.DefaultTrackingParams.
	TrackingParams []string

	// ReportWriteErrors appends ", Cache Write Exception: <msg>" to the
	// status trail when an entry cannot be prepared for storage. Failures
	// of the background write itself are only logged.
	ReportWriteErrors bool

	// MaxBodyBytes caps the size of a cacheable body. Larger responses are
	// streamed through uncached. Values above MaxBodyLimit are clamped.
	MaxBodyBytes int64

	// BackgroundTimeout bounds each purge, store and refresh task.
	BackgroundTimeout time.Duration

	Logger zerolog.Logger
}

// MaxBodyLimit is the largest body the engine buffers for caching.
const MaxBodyLimit int64 = 1 << 30

// DefaultConfig returns a configuration with the default limits.
func DefaultConfig(originClient *origin.Client) Config {
	return Config{
		Origin:            originClient,
		MaxBodyBytes:      10 << 20,
		BackgroundTimeout: 30 * time.Second,
		Logger:            zerolog.Nop(),
	}
}

// Engine is the cache decision engine.
type Engine struct {
	origin   *origin.Client
	cache    *cache.Manager
	versions *version.Counter
	purger   purge.Purger
	bypass   bypass.Evaluator
	keys     cache.KeyGenerator
	config   Config
	logger   zerolog.Logger

	tasks sync.WaitGroup
}

// New creates a new engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Origin == nil {
		return nil, fmt.Errorf("origin client is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.MaxBodyBytes > MaxBodyLimit {
		cfg.MaxBodyBytes = MaxBodyLimit
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 30 * time.Second
	}

	logger := logging.NewLogger(cfg.Logger, "edgecache")

	versions := cfg.Versions
	if versions == nil {
		var store cache.Store
		if cfg.Cache != nil {
			store = cfg.Cache.Store()
		}
		versions = version.NewCounter(store, logging.NewLogger(cfg.Logger, "version"))
	}

	purger := cfg.Purger
	if purger == nil && versions.Configured() {
		purger = purge.NewVersionPurger(versions, logging.NewLogger(cfg.Logger, "purge"))
	}

	return &Engine{
		origin:   cfg.Origin,
		cache:    cfg.Cache,
		versions: versions,
		purger:   purger,
		bypass:   bypass.NewEvaluator(cfg.BypassPrefixes),
		keys:     cache.NewKeyGenerator(cfg.TrackingParams...),
		config:   cfg,
		logger:   logger,
	}, nil
}

// Configured reports whether the engine has a cache or a purge strategy.
// An unconfigured engine passes every request straight to the origin.
func (e *Engine) Configured() bool {
	return e.cache != nil || e.purger != nil
}

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tw := &trackingWriter{ResponseWriter: w}
	defer e.escapeHatch(tw, r)

	if !e.handles(r) {
		requestsTotal.WithLabelValues("pass").Inc()
		e.pass(tw, r)
		return
	}
	requestsTotal.WithLabelValues("engine").Inc()
	e.process(tw, r)
}

// escapeHatch recovers from a panic in the engine by passing the request
// to the origin directly, as long as nothing was written yet.
func (e *Engine) escapeHatch(w *trackingWriter, r *http.Request) {
	p := recover()
	if p == nil {
		return
	}
	if p == http.ErrAbortHandler {
		panic(p)
	}

	requestsTotal.WithLabelValues("escape").Inc()
	logger := e.requestLogger(r)
	logger.Error().
		Interface("panic", p).
		Str("path", r.URL.Path).
		Msg("Edge cache failed, passing request to origin")

	if !w.wroteHeader {
		e.pass(w, r)
	}
}

// pass proxies r to the origin without any cache processing.
func (e *Engine) pass(w http.ResponseWriter, r *http.Request) {
	resp, err := e.origin.Pass(r.Context(), r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	origin.CopyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// Wait blocks until all background purge, store and refresh tasks have
// finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// Close waits for background tasks until ctx is done. It does not close
// the cache store, which the caller owns.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background cache tasks: %w", ctx.Err())
	}
}

type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
