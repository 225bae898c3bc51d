package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks metadata cache hits by layer (redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_hits_total",
			Help: "Total number of CRM metadata cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks metadata cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_cache_misses_total",
			Help: "Total number of CRM metadata cache misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
