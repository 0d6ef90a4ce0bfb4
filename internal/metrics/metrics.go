// Package metrics exposes Prometheus collectors for HTTP traffic and payment reconciliation.
//
// Label values stay bounded: routes use the registered gin path, and the
// reconciliation counters only take the fixed values listed on each helper.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypro_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paypro_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paypro_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypro_callbacks_total",
			Help: "Gateway callbacks by schema and outcome.",
		},
		[]string{"schema", "outcome"},
	)

	paidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypro_paid_transitions_total",
			Help: "Orders moved to paid, by the signal that caused it.",
		},
		[]string{"source"},
	)

	receipts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypro_receipts_total",
			Help: "Receipt deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypro_upstream_requests_total",
			Help: "Calls to the PayPro gateway by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paypro_upstream_request_duration_seconds",
			Help:    "Duration of PayPro gateway calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"op"},
	)
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
)

func init() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		httpInflight,
		callbacks,
		paidTransitions,
		receipts,
		upstreamRequests,
		upstreamLatency,
	)
}

// Middleware instruments requests. Unmatched routes fall back to the raw URL path.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// ObserveCallback counts a callback. schema is "status" or "invoice".
func ObserveCallback(schema, outcome string) {
	callbacks.WithLabelValues(schema, outcome).Inc()
}

// ObservePaid counts a paid transition by its source.
func ObservePaid(source string) {
	paidTransitions.WithLabelValues(source).Inc()
}

// ObserveReceipt counts a receipt attempt.
func ObserveReceipt(outcome string) {
	receipts.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records one gateway call. op is auth, create or status.
func ObserveUpstream(op string, start time.Time, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	upstreamRequests.WithLabelValues(op, outcome).Inc()
	upstreamLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
