// Package metrics provides Prometheus metrics for skillradar.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts ingestion cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillradar",
			Name:      "cycles_total",
			Help:      "Total number of ingestion cycles",
		},
		[]string{"status"},
	)

	// CycleDuration measures ingestion cycle duration.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "skillradar",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// SnapshotRecords is the size of the last saved snapshot.
	SnapshotRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skillradar",
			Name:      "snapshot_records",
			Help:      "Number of records in the last saved snapshot",
		},
	)

	// TrendSetSize is the size of each classified set in the last cycle.
	TrendSetSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "skillradar",
			Name:      "trend_set_size",
			Help:      "Number of entries per trend set in the last cycle",
		},
		[]string{"set"},
	)

	// DetailsSummarized counts details written by the summarizer.
	DetailsSummarized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skillradar",
			Name:      "details_summarized_total",
			Help:      "Total number of skill details produced by the summarizer",
		},
	)

	// CleanupRows counts rows removed by retention cleanup.
	CleanupRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skillradar",
			Name:      "cleanup_rows_total",
			Help:      "Total number of snapshot and history rows removed by retention",
		},
	)

	// ErrorsTotal counts errors by pipeline stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillradar",
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"stage"},
	)
)

// RecordCycle records a finished ingestion cycle.
func RecordCycle(status string, duration float64) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration)
}

// RecordTrendSets records the classified set sizes of a cycle.
func RecordTrendSets(records, top, newEntries, dropped, rising, falling, surging int) {
	SnapshotRecords.Set(float64(records))
	TrendSetSize.WithLabelValues("top").Set(float64(top))
	TrendSetSize.WithLabelValues("new").Set(float64(newEntries))
	TrendSetSize.WithLabelValues("dropped").Set(float64(dropped))
	TrendSetSize.WithLabelValues("rising").Set(float64(rising))
	TrendSetSize.WithLabelValues("falling").Set(float64(falling))
	TrendSetSize.WithLabelValues("surging").Set(float64(surging))
}

// RecordError records an error in a pipeline stage.
func RecordError(stage string) {
	ErrorsTotal.WithLabelValues(stage).Inc()
}
