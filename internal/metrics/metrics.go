package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bundleBuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetctl_bundle_build_failed_total",
			Help: "Number of times a bundle has failed to build",
		},
		[]string{"kind", "bundle", "error_type"},
	)

	bundleBuildCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetctl_bundle_build_count_total",
			Help: "Total number of times a bundle has been built",
		},
		[]string{"kind"},
	)

	bundleBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetctl_bundle_build_duration_seconds",
			Help:    "Bundle build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30},
		},
		[]string{"kind", "bundle"},
	)

	lastBundleBuildStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetctl_last_bundle_build_start_timestamp",
			Help: "Unix timestamp of when the last bundle build started",
		},
		[]string{"kind", "bundle"},
	)

	lastBundleBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetctl_last_bundle_build_end_timestamp",
			Help: "Unix timestamp of when the last successful bundle build ended",
		},
		[]string{"kind", "bundle"},
	)
)

// BundleBuildSucceeded records a successful build that started at start.
func BundleBuildSucceeded(kind, bundle string, start time.Time) {
	end := time.Now()
	bundleBuildCount.WithLabelValues(kind).Inc()
	bundleBuildDuration.WithLabelValues(kind, bundle).Observe(end.Sub(start).Seconds())
	lastBundleBuildStart.WithLabelValues(kind, bundle).Set(float64(start.Unix()))
	lastBundleBuildEnd.WithLabelValues(kind, bundle).Set(float64(end.Unix()))
}

func BundleBuildFailed(kind, bundle, errorType string) {
	bundleBuildCount.WithLabelValues(kind).Inc()
	bundleBuildFailed.WithLabelValues(kind, bundle, errorType).Inc()
}
