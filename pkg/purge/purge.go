// Package purge implements the ways the edge invalidates cached HTML when
// an origin asks for it.
package purge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/version"
)

var purgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "edge_cache_purges_total",
	Help: "Total purge operations by mode and result",
}, []string{"mode", "result"})

// Purger invalidates every cached HTML page.
type Purger interface {
	// Purge invalidates the cache. current is the caller's view of the
	// cache version, or version.Unconfigured.
	Purge(ctx context.Context, current int64) error
	// Mode names the strategy for logs and metrics.
	Mode() string
}

// VersionPurger purges by bumping the shared version counter.
type VersionPurger struct {
	counter *version.Counter
	logger  zerolog.Logger
}

// NewVersionPurger creates a purger over counter.
func NewVersionPurger(counter *version.Counter, logger zerolog.Logger) *VersionPurger {
	return &VersionPurger{counter: counter, logger: logger}
}

func (p *VersionPurger) Mode() string { return "version" }

func (p *VersionPurger) Purge(ctx context.Context, current int64) error {
	next, err := p.counter.Bump(ctx, current)
	if err != nil {
		purgesTotal.WithLabelValues(p.Mode(), "error").Inc()
		return fmt.Errorf("bump cache version: %w", err)
	}
	purgesTotal.WithLabelValues(p.Mode(), "success").Inc()
	p.logger.Info().
		Int64("from", current).
		Int64("to", next).
		Msg("Cache purged by version bump")
	return nil
}

// APIConfig describes a purge-everything HTTP endpoint, such as a CDN's
// zone purge API.
type APIConfig struct {
	// URL receives a POST with {"purge_everything":true}.
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds the call. Zero means 10s.
	Timeout time.Duration
}

// APIPurger purges by calling an external purge API. It is the fallback
// when no store holds a version counter.
type APIPurger struct {
	config     APIConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewAPIPurger creates an API purger.
func NewAPIPurger(cfg APIConfig, logger zerolog.Logger) (*APIPurger, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("purge api url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &APIPurger{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

func (p *APIPurger) Mode() string { return "api" }

type purgeRequest struct {
	PurgeEverything bool `json:"purge_everything"`
}

func (p *APIPurger) Purge(ctx context.Context, current int64) error {
	if err := p.call(ctx); err != nil {
		purgesTotal.WithLabelValues(p.Mode(), "error").Inc()
		return err
	}
	purgesTotal.WithLabelValues(p.Mode(), "success").Inc()
	p.logger.Info().Str("url", p.config.URL).Msg("Cache purged through purge API")
	return nil
}

func (p *APIPurger) call(ctx context.Context) error {
	body, err := json.Marshal(purgeRequest{PurgeEverything: true})
	if err != nil {
		return fmt.Errorf("marshal purge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("purge api request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("purge api returned %s", resp.Status)
	}
	return nil
}
