package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_cache_hits_total",
			Help: "Total number of derived asset cache hits",
		},
		[]string{"backend"}, // "filesystem", "s3", "redis"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_cache_misses_total",
			Help: "Total number of derived asset cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put"
	)

	// CacheBytesWritten tracks bytes written to the cache
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_cache_bytes_written_total",
			Help: "Total number of derived asset bytes written to the cache",
		},
		[]string{"backend"},
	)

	// GuardOpen is 1 while the cache health guard bypasses the backend
	GuardOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "asset_cache_guard_open",
			Help: "1 while the cache backend is bypassed after repeated failures",
		},
	)
)
