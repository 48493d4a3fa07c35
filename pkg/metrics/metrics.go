package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global metrics, registered on the default registry by promauto.

var (
	// HttpRequestsTotal counts API requests by method, route pattern and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageselect_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures API response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pageselect_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path"},
	)

	// PredicatesTotal counts predicates added to selections, labeled by kind
	// (include_uid, include_pid, exclude_uid, doktype, nav_hide).
	PredicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageselect_predicates_total",
			Help: "Total number of predicates added to page selections",
		},
		[]string{"kind"},
	)

	// ExecutionsTotal counts executed selections by outcome ("ok" or "error").
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageselect_executions_total",
			Help: "Total number of executed page selections",
		},
		[]string{"status"},
	)

	// ExpandedIDs measures how many uids a recursive expansion produced.
	ExpandedIDs = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pageselect_expanded_ids",
			Help:    "Number of page uids produced by a recursive tree expansion",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// TotalPages tracks the number of pages held by the page tree.
	TotalPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageselect_pages_total",
			Help: "Total number of pages in the page tree",
		},
	)
)
