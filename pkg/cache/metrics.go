package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (local, store)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_hits_total",
			Help: "Total number of edge cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks lookups that found nothing in any layer
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_misses_total",
			Help: "Total number of edge cache misses",
		},
	)

	// StoredBytes tracks bytes written to the durable store
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_stored_bytes_total",
			Help: "Total bytes written to the durable cache store",
		},
	)

	// LocalEntries tracks the number of entries in the local fast cache
	LocalEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_cache_local_entries",
			Help: "Current number of entries in the local fast cache",
		},
	)

	// StoreErrors tracks cache operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "decode", "encode", "incr"
	)
)
