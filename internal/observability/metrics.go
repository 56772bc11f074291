package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "matching_passes_total", Help: "Total matching passes run"})
	PassDuration     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "taxi_dispatch", Name: "matching_pass_duration_seconds", Help: "Matching pass latency", Buckets: prometheus.DefBuckets})
	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "assignments_total", Help: "Jobs assigned to drivers"})

	AssignmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "assignment_failures_total", Help: "Per-job assignment failures by reason"},
		[]string{"reason"},
	)

	QuotesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "quotes_total", Help: "Fare quotes produced"})
	QuoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "taxi_dispatch", Name: "quote_duration_seconds", Help: "Quote calculation latency", Buckets: prometheus.DefBuckets})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxi_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
