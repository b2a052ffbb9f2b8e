// Package origin forwards requests from the edge to the origin server.
package origin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/html-edge-cache/pkg/directive"
	"github.com/Sternrassler/html-edge-cache/pkg/logging"
)

// Prometheus metrics for origin operations.
var (
	originRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_requests_total",
		Help: "Total origin requests by status",
	}, []string{"status"})

	originRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_origin_request_duration_seconds",
		Help:    "Origin request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	originErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_errors_total",
		Help: "Total origin errors by class",
	}, []string{"class"})

	originRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_retries_total",
		Help: "Total number of origin retry attempts by error class",
	}, []string{"error_class"})

	originRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_origin_retry_backoff_seconds",
		Help:    "Backoff duration before origin retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	})

	originRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_retry_exhausted_total",
		Help: "Total number of times origin retries were exhausted by error class",
	}, []string{"error_class"})
)

// hopHeaders are connection-specific and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config holds the origin client configuration.
type Config struct {
	// URL is the origin base URL (REQUIRED), e.g. http://127.0.0.1:8080.
	URL string

	// Host overrides the Host header sent to the origin. Empty keeps the
	// client's Host.
	Host string

	// Timeout bounds a single origin exchange including the body.
	Timeout time.Duration

	// Retry applies to Fetch only.
	Retry RetryConfig

	// Transport overrides the HTTP transport (for testing).
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration for the origin at rawURL.
func DefaultConfig(rawURL string) Config {
	return Config{
		URL:     rawURL,
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
		Logger:  zerolog.Nop(),
	}
}

// Client talks to the origin. Redirects are returned to the caller, never
// followed.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new origin client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("origin url is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin url must be http or https (got %q)", cfg.URL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("origin url needs a host (got %q)", cfg.URL)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base:   base,
		config: cfg,
		logger: logging.NewLogger(cfg.Logger, "origin"),
	}, nil
}

// Forward sends r to the origin once, advertising the edge's capabilities.
// A response is returned for every HTTP status; the error is non-nil only
// when no response was obtained.
func (c *Client) Forward(ctx context.Context, r *http.Request) (*http.Response, error) {
	return c.do(ctx, r, true)
}

// Pass sends r to the origin untouched, without the capability header.
func (c *Client) Pass(ctx context.Context, r *http.Request) (*http.Response, error) {
	return c.do(ctx, r, false)
}

// Fetch is Forward with retries on network errors and 5xx responses. It
// is meant for body-less background requests.
func (c *Client) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		var err error
		resp, err = c.do(ctx, r, true)
		if err != nil {
			return ErrorClassNetwork, err
		}
		if class := classify(resp.StatusCode); shouldRetry(class) {
			resp.Body.Close()
			return class, &OriginError{
				StatusCode: resp.StatusCode,
				ErrorClass: class,
				Message:    resp.Status,
			}
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, r *http.Request, advertise bool) (*http.Response, error) {
	out, err := c.outgoing(ctx, r, advertise)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(out)
	originRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		originErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		originRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Origin request failed")
		return nil, &OriginError{
			ErrorClass: ErrorClassNetwork,
			Message:    "origin unreachable",
			Err:        err,
		}
	}

	originRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if class := classify(resp.StatusCode); class != "" {
		originErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("path", r.URL.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Origin returned error status")
	}
	return resp, nil
}

// outgoing builds the request sent to the origin for the client request r.
func (c *Client) outgoing(ctx context.Context, r *http.Request, advertise bool) (*http.Request, error) {
	target := *c.base
	target.Path = joinPath(c.base.Path, r.URL.Path)
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create origin request: %w", err)
	}
	out.ContentLength = r.ContentLength
	if body == nil {
		out.ContentLength = 0
	}

	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for _, name := range hopHeaders {
		out.Header.Del(name)
	}
	// Let the transport negotiate compression so bodies arrive decoded
	// and can be stored for any client.
	out.Header.Del("Accept-Encoding")

	if advertise {
		out.Header.Set(directive.HeaderName, directive.Capabilities)
	}

	out.Host = r.Host
	if c.config.Host != "" {
		out.Host = c.config.Host
	}
	setForwarded(out.Header, r)
	return out, nil
}

// CopyHeader copies src into dst, skipping hop-by-hop headers.
func CopyHeader(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		dst[name] = append([]string(nil), values...)
	}
}

func isHopHeader(name string) bool {
	for _, hop := range hopHeaders {
		if strings.EqualFold(name, hop) {
			return true
		}
	}
	return false
}

func setForwarded(h http.Header, r *http.Request) {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			ip = strings.Join(prior, ", ") + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	if h.Get("X-Forwarded-Host") == "" && r.Host != "" {
		h.Set("X-Forwarded-Host", r.Host)
	}
	if h.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		h.Set("X-Forwarded-Proto", proto)
	}
}

func joinPath(base, path string) string {
	switch {
	case base == "" || base == "/":
		if path == "" {
			return "/"
		}
		return path
	case path == "" || path == "/":
		return base
	default:
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
}
