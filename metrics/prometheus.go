package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded per attempt.
const (
	OutcomeOK          = "ok"
	OutcomeCacheHit    = "cache_hit"
	OutcomeRateLimited = "rate_limited"
	OutcomeBlocked     = "blocked"
	OutcomeTransient   = "transient"
	OutcomeExhausted   = "exhausted"
)

var (
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeshare_fetch_attempts_total",
			Help: "Fetch attempts partitioned by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timeshare_fetch_duration_seconds",
			Help:    "Upstream request latency, excluding politeness delay.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeshare_runs_total",
			Help: "Finished scrape and import runs by source and status.",
		},
		[]string{"source", "status"},
	)

	listingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeshare_listings_upserted_total",
			Help: "Listings written by scrape runs, split into new and updated.",
		},
		[]string{"source", "result"},
	)
)

// RecordFetch counts one fetch attempt outcome.
func RecordFetch(source, outcome string) {
	fetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveFetch records the latency of one upstream request.
func ObserveFetch(source string, d time.Duration) {
	fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordRun counts a finalized run.
func RecordRun(source, status string) {
	runsTotal.WithLabelValues(source, status).Inc()
}

// RecordListings adds the new/updated counts of a run.
func RecordListings(source string, created, updated int) {
	listingsTotal.WithLabelValues(source, "new").Add(float64(created))
	listingsTotal.WithLabelValues(source, "updated").Add(float64(updated))
}

// Handler returns the HTTP handler exporting Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
