package coalesce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlightsStarted tracks computations started by a leader
	FlightsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_coalesce_flights_total",
			Help: "Total number of coalesced computations started",
		},
	)

	// Joins tracks callers that attached to a running computation
	Joins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_coalesce_joins_total",
			Help: "Total number of callers that joined a running computation",
		},
	)

	// FlightsInProgress tracks running computations
	FlightsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "asset_coalesce_inflight",
			Help: "Number of computations currently running",
		},
	)

	// WaiterCancellations tracks callers that left before the result arrived
	WaiterCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_coalesce_waiter_cancellations_total",
			Help: "Total number of callers that stopped waiting for a computation",
		},
	)

	// FlightDuration tracks how long computations run
	FlightDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asset_coalesce_flight_duration_seconds",
			Help:    "Duration of coalesced computations",
			Buckets: prometheus.DefBuckets,
		},
	)
)
