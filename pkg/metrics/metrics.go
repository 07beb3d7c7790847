// Package metrics provides the Prometheus registry and handler for the asset
// pipeline. All metrics are defined in their respective packages (cache,
// origin, imaging, coalesce, pipeline, backend) with promauto and register
// themselves on the default registry.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the asset pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry the handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Resolve Metrics (pkg/pipeline):
//   - asset_resolve_total{status} (Counter): Resolutions by status (hit, miss, error)
//   - asset_resolve_duration_seconds{status} (Histogram): Resolution duration by status
//   - asset_resolve_errors_total{kind} (Counter): Failures by error kind
//   - asset_cache_degraded_total{operation} (Counter): Cache failures absorbed (get, put)
//
// Cache Metrics (pkg/cache):
//   - asset_cache_hits_total{backend} (Counter): Cache hits by backend
//   - asset_cache_misses_total{backend} (Counter): Cache misses by backend
//   - asset_cache_errors_total{backend, operation} (Counter): Cache operation errors
//   - asset_cache_bytes_written_total{backend} (Counter): Derived bytes written
//   - asset_cache_guard_open (Gauge): 1 while the cache backend is bypassed
//
// Origin Metrics (pkg/origin):
//   - asset_origin_requests_total{backend, operation, result} (Counter): Origin calls
//   - asset_origin_bytes_read_total{backend} (Counter): Original bytes read
//   - asset_origin_version_hashes_total (Counter): Content hashes computed for version tags
//
// Transform Metrics (pkg/imaging):
//   - asset_transform_duration_seconds{format} (Histogram): Transform duration by output format
//   - asset_transform_errors_total{reason} (Counter): Failed transforms by reason
//   - asset_transform_passthrough_total (Counter): Source bytes returned unchanged
//   - asset_transforms_active (Gauge): Transforms holding a worker slot
//
// Coalescing Metrics (pkg/coalesce):
//   - asset_coalesce_flights_total (Counter): Computations started
//   - asset_coalesce_joins_total (Counter): Callers that joined a running computation
//   - asset_coalesce_inflight (Gauge): Running computations
//   - asset_coalesce_waiter_cancellations_total (Counter): Callers that stopped waiting
//   - asset_coalesce_flight_duration_seconds (Histogram): Computation duration
//
// Retry Metrics (pkg/backend):
//   - asset_backend_retries_total{operation} (Counter): Retry attempts by operation
//   - asset_backend_retry_backoff_seconds{operation} (Histogram): Backoff duration by operation
//   - asset_backend_retry_exhausted_total{operation} (Counter): Operations that exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(asset_resolve_total{status="hit"}[5m])) /
//   sum(rate(asset_resolve_total{status=~"hit|miss"}[5m]))
//
//   # Coalescing Effectiveness
//   rate(asset_coalesce_joins_total[5m]) / rate(asset_coalesce_flights_total[5m])
//
//   # Cache Degradation
//   asset_cache_guard_open == 1
//
//   # P95 Transform Latency
//   histogram_quantile(0.95, rate(asset_transform_duration_seconds_bucket[5m]))
