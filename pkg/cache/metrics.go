package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of shared cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of shared cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)

	// CacheInvalidations tracks invalidated tags
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_invalidations_total",
			Help: "Total number of cache tags invalidated",
		},
	)

	// CacheInvalidatedEntries tracks entries removed by tag invalidation
	CacheInvalidatedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_invalidated_entries_total",
			Help: "Total number of cache entries removed by tag invalidation",
		},
	)
)
