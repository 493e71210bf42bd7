// Package metrics provides Prometheus instrumentation for the bridge's two
// operations. Counters carry an outcome label so dashboards can separate
// successes, failures, and skipped (empty-table) loads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	// FetchesTotal counts fetch actions by outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowbridge",
			Name:      "fetches_total",
			Help:      "Total REDCap fetch operations by outcome",
		},
		[]string{"outcome"},
	)

	// LoadsTotal counts load actions by outcome.
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowbridge",
			Name:      "loads_total",
			Help:      "Total Snowflake load operations by outcome",
		},
		[]string{"outcome"},
	)

	// RowsLoaded counts rows written to the destination.
	RowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "snowbridge",
			Name:      "rows_loaded_total",
			Help:      "Total rows bulk-written to Snowflake",
		},
	)

	// FetchDuration observes fetch latency.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snowbridge",
			Name:      "fetch_duration_seconds",
			Help:      "REDCap export latency",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// LoadDuration observes load latency.
	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snowbridge",
			Name:      "load_duration_seconds",
			Help:      "Snowflake load latency",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// Timer measures an operation's duration against a histogram.
type Timer struct {
	hist  prometheus.Histogram
	start time.Time
}

// NewTimer starts a timer against the given histogram.
func NewTimer(hist prometheus.Histogram) *Timer {
	return &Timer{hist: hist, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.hist.Observe(elapsed.Seconds())
	return elapsed
}
