package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/internal/config"
	"github.com/Sternrassler/html-edge-cache/pkg/cache"
	"github.com/Sternrassler/html-edge-cache/pkg/edgecache"
	"github.com/Sternrassler/html-edge-cache/pkg/logging"
	"github.com/Sternrassler/html-edge-cache/pkg/metrics"
	"github.com/Sternrassler/html-edge-cache/pkg/origin"
	"github.com/Sternrassler/html-edge-cache/pkg/purge"
	"github.com/Sternrassler/html-edge-cache/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "edge-cache: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Edge cache stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			// Reads and writes degrade per request; the version counter
			// recovers once the store is reachable.
			logger.Warn().Err(err).Str("backend", cfg.Store.Backend).Msg("Cache store not reachable at startup")
		}
	}

	engine, err := newEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(engine, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("origin", cfg.Origin.URL).
			Str("store", cfg.Store.Backend).
			Bool("configured", engine.Configured()).
			Msg("Edge cache listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Background cache work abandoned")
	}
	return nil
}

// openStore opens the configured durable store. It returns a nil store
// for the "none" backend.
func openStore(cfg config.Config) (cache.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		store, err := cache.OpenRedisStore(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := cache.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.BackendLevelDB:
		store, err := cache.OpenLevelDBStore(cfg.Store.LevelDBPath)
		if err != nil {
			return nil, fmt.Errorf("open leveldb store: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return cache.NewMemoryStore(), nil
	case config.BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newEngine wires the cache manager, version counter and purge strategy
// for store, which may be nil.
func newEngine(cfg config.Config, store cache.Store, logger zerolog.Logger) (*edgecache.Engine, error) {
	originCfg := origin.DefaultConfig(cfg.Origin.URL)
	originCfg.Host = cfg.Origin.Host
	originCfg.Timeout = cfg.Origin.Timeout
	originCfg.Logger = logger
	originClient, err := origin.New(originCfg)
	if err != nil {
		return nil, err
	}

	engineCfg := edgecache.DefaultConfig(originClient)
	engineCfg.Logger = logger
	engineCfg.BypassPrefixes = cfg.Cache.BypassCookies
	engineCfg.TrackingParams = cfg.Cache.TrackingParams
	engineCfg.ReportWriteErrors = cfg.Cache.ReportWriteErrors
	engineCfg.MaxBodyBytes = cfg.Cache.MaxBodyBytes

	if store != nil {
		opts := []cache.ManagerOption{
			cache.WithEntryTTL(cfg.Cache.EntryTTL),
			cache.WithLogger(logging.NewLogger(logger, "cache")),
		}
		if cfg.Cache.LocalSize > 0 {
			opts = append(opts, cache.WithLocalCache(cache.NewLocalCache(cfg.Cache.LocalSize, cfg.Cache.LocalTTL)))
		}
		engineCfg.Cache = cache.NewManager(store, opts...)
		engineCfg.Versions = version.NewCounter(store, logging.NewLogger(logger, "version"), version.WithTTL(cfg.Cache.VersionTTL))
	} else if cfg.PurgeAPI.URL != "" {
		purger, err := purge.NewAPIPurger(purge.APIConfig{
			URL:   cfg.PurgeAPI.URL,
			Token: cfg.PurgeAPI.Token,
		}, logging.NewLogger(logger, "purge"))
		if err != nil {
			return nil, err
		}
		engineCfg.Purger = purger
	}

	return edgecache.New(engineCfg)
}

func newRouter(engine *edgecache.Engine, store cache.Store, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(logger))

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", readyHandler(store))
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/*", engine)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			fmt.Fprint(w, "OK (no store)")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			http.Error(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "OK")
	}
}
