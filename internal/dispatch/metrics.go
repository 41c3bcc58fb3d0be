package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ship_notification_dispatch_total",
			Help: "Total dispatch attempts by outcome.",
		},
		[]string{"outcome"},
	)
	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ship_notification_dispatch_duration_seconds",
			Help:    "Duration of a single notification dispatch.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)
