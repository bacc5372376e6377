// Package metrics exposes Prometheus collectors for the output connector and
// keeps a per-service history of measure records.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dd_output"

// Metrics holds the connector's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MeasureRuns     *prometheus.CounterVec
	MeasureDuration prometheus.Histogram
	MeasureKeys     prometheus.Histogram
	SkippedMetrics  *prometheus.CounterVec

	FinalizeRuns     *prometheus.CounterVec
	FinalizeDuration prometheus.Histogram
	Predictions      prometheus.Counter

	IndexedEntries prometheus.Counter
	IndexSearches  prometheus.Counter

	BusPublishes     *prometheus.CounterVec
	BusPublishMillis prometheus.Histogram

	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New registers a fresh set of collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MeasureRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measure_runs_total",
			Help:      "Measure computations by outcome.",
		}, []string{"status"}),
		MeasureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measure_duration_seconds",
			Help:      "Time spent computing one measure record.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		MeasureKeys: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measure_keys",
			Help:      "Number of keys in emitted measure records.",
			Buckets:   prometheus.LinearBuckets(5, 10, 8),
		}),
		SkippedMetrics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measure_skipped_total",
			Help:      "Requested metrics that did not apply to the batch.",
		}, []string{"metric"}),

		FinalizeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_runs_total",
			Help:      "Finalize calls by outcome.",
		}, []string{"status"}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_duration_seconds",
			Help:      "Time spent finalizing one prediction response.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Predictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions rendered by finalize calls.",
		}),

		IndexedEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_entries_total",
			Help:      "Samples added to the similarity index.",
		}),
		IndexSearches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_searches_total",
			Help:      "Finalize calls that searched the similarity index.",
		}),

		BusPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_total",
			Help:      "Bus publishes by topic and outcome.",
		}, []string{"topic", "status"}),
		BusPublishMillis: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_milliseconds",
			Help:      "Bus publish latency.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests being served.",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordMeasure records one measure computation.
func (m *Metrics) RecordMeasure(d time.Duration, keys int, skipped []string, err error) {
	if m == nil {
		return
	}
	m.MeasureRuns.WithLabelValues(status(err)).Inc()
	m.MeasureDuration.Observe(d.Seconds())
	if err == nil {
		m.MeasureKeys.Observe(float64(keys))
	}
	for _, s := range skipped {
		m.SkippedMetrics.WithLabelValues(s).Inc()
	}
}

// RecordFinalize records one finalize call.
func (m *Metrics) RecordFinalize(d time.Duration, predictions, indexed int, searched bool, err error) {
	if m == nil {
		return
	}
	m.FinalizeRuns.WithLabelValues(status(err)).Inc()
	m.FinalizeDuration.Observe(d.Seconds())
	if err != nil {
		return
	}
	m.Predictions.Add(float64(predictions))
	m.IndexedEntries.Add(float64(indexed))
	if searched {
		m.IndexSearches.Inc()
	}
}

// RecordBusPublish implements bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	if m == nil {
		return
	}
	m.BusPublishes.WithLabelValues(topic, status(err)).Inc()
	m.BusPublishMillis.Observe(float64(latencyMs))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, statusCode(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// statusCode keeps common codes and groups the rest by class.
func statusCode(code int) string {
	switch code {
	case 200, 201, 204, 400, 404, 405, 429, 500, 503:
		return strconv.Itoa(code)
	}
	if code >= 100 && code < 600 {
		return strconv.Itoa(code/100) + "xx"
	}
	return strconv.Itoa(code)
}
