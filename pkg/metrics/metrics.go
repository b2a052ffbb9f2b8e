// Package metrics exposes the Prometheus registry used by the edge cache.
// All metrics are defined in their respective packages (cache, version,
// purge, origin, edgecache) to keep packages self-contained and avoid
// circular dependencies.
//
// This package provides the /metrics handler and a reference of all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the edge cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Engine Metrics (pkg/edgecache):
//   - edge_cache_requests_total{path} (Counter): Requests by handling path (engine, pass, escape)
//   - edge_cache_lookups_total{result} (Counter): Lookups by result (hit, miss, bypass, reload, error)
//   - edge_cache_writes_total{result} (Counter): Cache writes by result
//   - edge_cache_refreshes_total{result} (Counter): Background refreshes (success, skipped, error)
//   - edge_cache_background_tasks (Gauge): Background tasks in flight
//   - edge_cache_background_errors_total{task} (Counter): Failed background tasks
//
// Cache Metrics (pkg/cache):
//   - edge_cache_hits_total{layer} (Counter): Cache hits by layer (local, store)
//   - edge_cache_misses_total (Counter): Cache misses
//   - edge_cache_stored_bytes_total (Counter): Bytes written to the durable store
//   - edge_cache_local_entries (Gauge): Entries in the local fast cache
//   - edge_cache_store_errors_total{operation} (Counter): Store errors by operation
//
// Version and Purge Metrics (pkg/version, pkg/purge):
//   - edge_cache_version (Gauge): Cache version as seen by this process
//   - edge_cache_version_bumps_total{result} (Counter): Version increments
//   - edge_cache_purges_total{mode, result} (Counter): Purges by strategy (version, api)
//
// Origin Metrics (pkg/origin):
//   - edge_origin_requests_total{status} (Counter): Origin requests by HTTP status
//   - edge_origin_request_duration_seconds (Histogram): Origin request duration
//   - edge_origin_errors_total{class} (Counter): Errors by class (client, server, network)
//   - edge_origin_retries_total{error_class} (Counter): Refresh retry attempts
//   - edge_origin_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - edge_origin_retry_exhausted_total{error_class} (Counter): Refreshes that exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(edge_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(edge_cache_lookups_total[5m]))
//
//   # Purge Rate
//   sum(rate(edge_cache_purges_total{result="success"}[5m])) by (mode)
//
//   # Stuck Background Work
//   edge_cache_background_tasks > 50
//
//   # P95 Origin Latency
//   histogram_quantile(0.95, rate(edge_origin_request_duration_seconds_bucket[5m]))
