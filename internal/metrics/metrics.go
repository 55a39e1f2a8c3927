package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TimeStepsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peatwatch_time_steps_processed_total",
			Help: "Time steps aggregated per variable",
		},
		[]string{"variable"},
	)

	DegenerateTimeSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peatwatch_degenerate_time_steps_total",
			Help: "Time steps that produced NaN (no valid pixels or zero total weight)",
		},
		[]string{"variable"},
	)

	ValidPixelsPerStep = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peatwatch_valid_pixels_per_step",
			Help:    "Valid in-zone pixel count per aggregated time step",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"variable"},
	)

	CatalogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peatwatch_catalog_fetches_total",
			Help: "Total catalog document fetches",
		},
		[]string{"status"},
	)

	CatalogFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peatwatch_catalog_fetch_latency_seconds",
			Help:    "Catalog fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
