// Package metrics exposes Prometheus metrics for analyses, HTTP traffic and
// the document queue.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/govworks/foia/internal/pii"
)

var analysisBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	entities         prometheus.Histogram
	piiDetections    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	queueDepth *prometheus.GaugeVec
	workers    prometheus.Gauge
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "foia"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses run, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analysis latency by kind.",
			Buckets:   analysisBuckets,
		}, []string{"kind"}),
		entities: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_entities",
			Help:      "Entities extracted per request analysis.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
		piiDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_detections_total",
			Help:      "PII items detected in documents, by type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Document jobs by state.",
		}, []string{"state"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "active_workers",
			Help:      "Workers with a recent heartbeat.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		m.analyses, m.analysisDuration, m.entities, m.piiDetections,
		m.httpRequests, m.httpDuration,
		m.queueDepth, m.workers,
	)
	return m
}

// Registry is exposed for tests and for callers registering their own
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) ObserveRequestAnalysis(elapsed time.Duration, entities int, err error) {
	m.analyses.WithLabelValues("request", outcome(err)).Inc()
	m.analysisDuration.WithLabelValues("request").Observe(elapsed.Seconds())
	if err == nil {
		m.entities.Observe(float64(entities))
	}
}

func (m *Metrics) ObserveDocumentAnalysis(elapsed time.Duration, detections []pii.Detection, err error) {
	m.analyses.WithLabelValues("document", outcome(err)).Inc()
	m.analysisDuration.WithLabelValues("document").Observe(elapsed.Seconds())
	for _, d := range detections {
		m.piiDetections.WithLabelValues(d.Type).Inc()
	}
}

// SetQueueStats records the current queue depth per state.
func (m *Metrics) SetQueueStats(stats map[string]int64, activeWorkers int) {
	for state, n := range stats {
		m.queueDepth.WithLabelValues(state).Set(float64(n))
	}
	m.workers.Set(float64(activeWorkers))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
