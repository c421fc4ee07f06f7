package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ScoringMetrics tracks the scoring pipeline.
type ScoringMetrics struct {
	ScoredTotal      *prometheus.CounterVec
	ScoringDuration  prometheus.Histogram
	CandidateFanout  prometheus.Histogram
	DegradedTotal    *prometheus.CounterVec
}

func NewScoringMetrics() *ScoringMetrics {
	return &ScoringMetrics{
		ScoredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sieve",
			Name:      "invoices_scored_total",
			Help:      "Invoices scored, labelled by final decision.",
		}, []string{"decision"}),
		ScoringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sieve",
			Name:      "scoring_duration_seconds",
			Help:      "End to end scoring latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		CandidateFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sieve",
			Name:      "candidate_fanout",
			Help:      "Candidates considered per scoring request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 200},
		}),
		DegradedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sieve",
			Name:      "degraded_total",
			Help:      "Degraded-mode events by capability.",
		}, []string{"capability"}),
	}
}

// HTTPMetrics tracks request counts and latency per route.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sieve",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sieve",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records per-request metrics.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
