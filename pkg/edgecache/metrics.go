package edgecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_requests_total",
		Help: "Total requests by handling path (engine, pass, escape)",
	}, []string{"path"})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_lookups_total",
		Help: "Total cache lookups by result (hit, miss, bypass, reload, error)",
	}, []string{"result"})

	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_writes_total",
		Help: "Total cache writes by result",
	}, []string{"result"})

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_refreshes_total",
		Help: "Total background refreshes by result (success, skipped, error)",
	}, []string{"result"})

	backgroundTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_cache_background_tasks",
		Help: "Background purge, store and refresh tasks in flight",
	})

	backgroundErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cache_background_errors_total",
		Help: "Total failed background tasks by task",
	}, []string{"task"})
)
