package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	// CandidatesSubmitted counts discovery submissions by source and whether a record was created
	CandidatesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_submitted_total",
			Help:      "Candidate submissions accepted by discovery, by source and creation.",
		},
		[]string{"source", "created"},
	)

	// SweepsTotal counts sweeps by phase and result
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeps run per phase, by result.",
		},
		[]string{"phase", "result"},
	)

	// SweepDuration tracks how long sweeps take per phase
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Sweep wall-clock duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	// RecordsProcessed counts per-record phase outcomes
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records processed per phase, by outcome.",
		},
		[]string{"phase", "outcome"},
	)

	// ProbeRequests counts storefront probe requests by kind and result
	ProbeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_requests_total",
			Help:      "Storefront probe requests, by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// NewServer returns an HTTP server exposing /metrics on addr
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
