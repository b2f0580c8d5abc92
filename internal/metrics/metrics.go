// Package metrics provides Prometheus instrumentation for the feature pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// RecordsReadTotal counts transactions accepted from the source.
	RecordsReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featurepipe",
		Name:      "records_read_total",
		Help:      "Total transactions accepted from the source.",
	})

	// RecordsDroppedTotal counts malformed source rows dropped from aggregation.
	RecordsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featurepipe",
		Name:      "records_dropped_total",
		Help:      "Total malformed source rows dropped.",
	})

	// RecordsDerivedTotal counts derived-feature records produced.
	RecordsDerivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featurepipe",
		Name:      "records_derived_total",
		Help:      "Total derived-feature records produced.",
	})

	// UndefinedRatiosTotal counts records whose ratio denominators were defused.
	UndefinedRatiosTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featurepipe",
		Name:      "undefined_ratios_total",
		Help:      "Total records flagged with a defused zero-denominator ratio.",
	})

	// PublishesTotal counts snapshot upsert attempts by result.
	PublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featurepipe",
			Name:      "publishes_total",
			Help:      "Total snapshot upsert attempts by result.",
		},
		[]string{"result"},
	)

	// PublishDuration observes per-snapshot upsert latency.
	PublishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "featurepipe",
		Name:      "publish_duration_seconds",
		Help:      "Snapshot upsert latency in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "featurepipe",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	// DistinctKeys tracks distinct account keys seen in the latest run.
	DistinctKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "featurepipe",
		Name:      "distinct_account_keys",
		Help:      "Distinct account keys observed in the latest run.",
	})

	// StoreRequestsTotal counts dev store HTTP requests by method, path, and status.
	StoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featurepipe",
			Name:      "store_requests_total",
			Help:      "Total dev store HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// StoreRequestDuration observes dev store request latency.
	StoreRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "featurepipe",
			Name:      "store_request_duration_seconds",
			Help:      "Dev store HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsReadTotal,
		RecordsDroppedTotal,
		RecordsDerivedTotal,
		UndefinedRatiosTotal,
		PublishesTotal,
		PublishDuration,
		StageDuration,
		DistinctKeys,
		StoreRequestsTotal,
		StoreRequestDuration,
	)
}

// ObserveStage records the duration of a pipeline stage. Use with defer:
//
//	defer metrics.ObserveStage("window")()
func ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Push sends all registered metrics to a Pushgateway. Batch runs have no
// scrapeable lifetime, so the final counters are pushed once on completion.
// A blank URL disables the push.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
}

// Middleware returns a gin middleware that records dev store request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(StoreRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		StoreRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
