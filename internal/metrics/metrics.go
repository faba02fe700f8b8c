// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Votes counts vote transitions by direction and outcome
	// ("ok", "invalid", "not_found", "conflict", "unavailable", "error").
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_votes_total",
		Help: "Vote transitions by direction and result",
	}, []string{"direction", "result"})

	ListDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_post_list_duration_seconds",
		Help:    "Time to build one post listing page, including comment counts",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"mode"})

	CommentCountBatch = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_comment_count_batch_titles",
		Help:    "Distinct titles per comment-count lookup batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_post_cache_lookups_total",
		Help: "Post cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern, method and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
