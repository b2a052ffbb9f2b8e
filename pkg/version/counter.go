package version

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/cache"
)

var (
	cacheVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_cache_version",
		Help: "Current HTML cache version as seen by this process",
	})

	versionBumpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_version_bumps_total",
		Help: "Total number of cache version increments",
	}, []string{"result"})
)

// Counter reads and increments the cache version stored under a single
// key. Reads are cached per process for the configured TTL.
type Counter struct {
	store       cache.Store
	key         string
	ttl         time.Duration
	readTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	snapshot Snapshot
}

// Option configures a Counter.
type Option func(*Counter)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(c *Counter) { c.key = key }
}

// WithTTL overrides DefaultTTL. Zero disables process-local caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Counter) { c.ttl = ttl }
}

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Counter) { c.readTimeout = timeout }
}

// NewCounter creates a counter over store. A nil store yields an
// unconfigured counter whose version is always Unconfigured.
func NewCounter(store cache.Store, logger zerolog.Logger, opts ...Option) *Counter {
	c := &Counter{
		store:       store,
		key:         DefaultKey,
		ttl:         DefaultTTL,
		readTimeout: DefaultReadTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a store backs the counter.
func (c *Counter) Configured() bool {
	return c != nil && c.store != nil
}

// Current returns the cache version. A missing key reads as 0. The store
// read runs outside the lock, so a slow store delays only the callers that
// need a fresh value.
func (c *Counter) Current(ctx context.Context) (int64, error) {
	if !c.Configured() {
		return Unconfigured, nil
	}

	c.mu.Lock()
	snapshot := c.snapshot
	c.mu.Unlock()
	if !snapshot.IsStale(c.ttl) {
		return snapshot.Value, nil
	}

	started := time.Now()
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	value, err := c.read(readCtx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A bump or a faster reader may have stored a newer value meanwhile.
	if c.snapshot.FetchedAt.After(started) {
		return c.snapshot.Value, nil
	}
	c.remember(value)
	return value, nil
}

// Bump increments the version. current is the caller's view of the
// version and is used only when the store cannot increment atomically;
// pass a negative value to have it read from the store.
func (c *Counter) Bump(ctx context.Context, current int64) (int64, error) {
	if !c.Configured() {
		return Unconfigured, cache.ErrNotConfigured
	}

	next, err := c.increment(ctx, current)
	if err != nil {
		versionBumpsTotal.WithLabelValues("error").Inc()
		cache.StoreErrors.WithLabelValues("incr").Inc()
		return 0, err
	}
	versionBumpsTotal.WithLabelValues("success").Inc()

	c.mu.Lock()
	if next > c.snapshot.Value || c.snapshot.FetchedAt.IsZero() {
		c.remember(next)
	}
	c.mu.Unlock()

	c.logger.Info().
		Int64("version", next).
		Msg("Cache version bumped")
	return next, nil
}

func (c *Counter) increment(ctx context.Context, current int64) (int64, error) {
	if incr, ok := c.store.(cache.Incrementer); ok {
		next, err := incr.Incr(ctx, c.key)
		if err != nil {
			return 0, fmt.Errorf("increment version: %w", err)
		}
		return next, nil
	}

	// Read-increment-write. Concurrent bumps may collapse into one, which
	// still moves the version forward.
	if current < 0 {
		value, err := c.read(ctx)
		if err != nil {
			return 0, err
		}
		current = value
	}
	next := current + 1
	if err := c.store.Set(ctx, c.key, []byte(strconv.FormatInt(next, 10)), 0); err != nil {
		return 0, fmt.Errorf("write version: %w", err)
	}
	return next, nil
}

func (c *Counter) read(ctx context.Context) (int64, error) {
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.initialize(ctx)
			return 0, nil
		}
		return 0, fmt.Errorf("read version: %w", err)
	}
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", raw, err)
	}
	return value, nil
}

// initialize persists version 0 on first use. It never overwrites a value
// written concurrently by another process.
func (c *Counter) initialize(ctx context.Context) {
	nx, ok := c.store.(cache.Initializer)
	if !ok {
		return
	}
	written, err := nx.SetNX(ctx, c.key, []byte("0"))
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Failed to initialize cache version")
		return
	}
	if written {
		c.logger.Info().Str("key", c.key).Msg("Cache version initialized at 0")
	}
}

// remember must be called with c.mu held.
func (c *Counter) remember(value int64) {
	c.snapshot = Snapshot{Value: value, FetchedAt: time.Now()}
	cacheVersion.Set(float64(value))
}
