package origin

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OriginRequests tracks origin calls by backend, operation and result
	OriginRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_origin_requests_total",
			Help: "Total number of origin store calls",
		},
		[]string{"backend", "operation", "result"}, // result: "ok", "not_found", "error"
	)

	// OriginBytesRead tracks original bytes transferred
	OriginBytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_origin_bytes_read_total",
			Help: "Total number of original asset bytes read",
		},
		[]string{"backend"},
	)

	// VersionHashes counts full-content hashes computed to derive a version
	VersionHashes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_origin_version_hashes_total",
			Help: "Total number of content hashes computed for filesystem version tags",
		},
	)
)

func observe(backendName, operation string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	OriginRequests.WithLabelValues(backendName, operation, result).Inc()
}
