package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_runs_total",
			Help: "Total number of finished runs by status",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiln_run_duration_seconds",
			Help:    "End-to-end run pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_active_runs",
			Help: "Number of runs currently executing",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiln_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Storage metrics
	FilesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_files_uploaded_total",
			Help: "Total number of files uploaded",
		},
	)

	ArtifactsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_artifacts_ingested_total",
			Help: "Total number of artifacts ingested from runs",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(ActiveRuns)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(FilesUploadedTotal)
	prometheus.MustRegister(ArtifactsIngestedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
