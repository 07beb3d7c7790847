package imaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransformDuration tracks decode+resample+encode time by output format
	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asset_transform_duration_seconds",
			Help:    "Duration of image transforms by output format",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	// TransformErrors tracks failed transforms by reason
	TransformErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_transform_errors_total",
			Help: "Total number of failed image transforms",
		},
		[]string{"reason"}, // "unsupported", "too_large", "decode", "encode", "cancelled"
	)

	// Passthroughs counts requests served with the source bytes unchanged
	Passthroughs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_transform_passthrough_total",
			Help: "Total number of transforms that returned the source bytes unchanged",
		},
	)

	// TransformsActive tracks transforms currently holding a worker slot
	TransformsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "asset_transforms_active",
			Help: "Number of transforms currently decoding or encoding",
		},
	)
)
