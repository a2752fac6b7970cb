// Package metrics provides Prometheus instrumentation for the toggled
// binaries.
//
// All collectors are registered in a custom [prometheus.Registry] (not the
// global default) so that only toggled metrics appear on the /metrics
// endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics holds the collectors used by the flag API server.
type ServerMetrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    *prometheus.CounterVec
	PublishesTotal      *prometheus.CounterVec
}

// NewServer creates and registers the flag API server metrics in a fresh
// registry.
func NewServer() *ServerMetrics {
	reg := prometheus.NewRegistry()

	m := &ServerMetrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggled_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toggled_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggled_flag_evaluations_total",
			Help: "Total number of flag evaluations.",
		}, []string{"result"}),

		PublishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggled_event_publishes_total",
			Help: "Total number of evaluation-event publish attempts.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.PublishesTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves the registry.
func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncPublish records one publish attempt outcome.
func (m *ServerMetrics) IncPublish(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.PublishesTotal.WithLabelValues(outcome).Inc()
}

// IncEvaluation records one evaluation result.
func (m *ServerMetrics) IncEvaluation(result bool) {
	m.EvaluationsTotal.WithLabelValues(strconv.FormatBool(result)).Inc()
}

// InstrumentHandler wraps next, recording request count and latency per
// method, matched route pattern, and status.
func (m *ServerMetrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(recorder.status)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// ConsumerMetrics holds the collectors used by the analytics consumer.
type ConsumerMetrics struct {
	Registry *prometheus.Registry

	MessagesTotal    *prometheus.CounterVec
	DependencyHealth *prometheus.GaugeVec
	LastHeartbeat    prometheus.Gauge
}

// NewConsumer creates and registers the analytics consumer metrics in a
// fresh registry.
func NewConsumer() *ConsumerMetrics {
	reg := prometheus.NewRegistry()

	m := &ConsumerMetrics{
		Registry: reg,

		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggled_consumer_messages_total",
			Help: "Total number of processed queue messages by terminal outcome.",
		}, []string{"outcome"}),

		DependencyHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toggled_consumer_dependency_healthy",
			Help: "Whether the last probe of a dependency succeeded (1) or failed (0).",
		}, []string{"target"}),

		LastHeartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toggled_consumer_last_heartbeat_seconds",
			Help: "Unix timestamp of the most recent worker heartbeat.",
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.DependencyHealth,
		m.LastHeartbeat,
	)

	return m
}

// Handler returns an [http.Handler] that serves the registry.
func (m *ConsumerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetDependencyHealth records a probe outcome for target.
func (m *ConsumerMetrics) SetDependencyHealth(target string, ok bool) {
	value := 0.0
	if ok {
		value = 1.0
	}
	m.DependencyHealth.WithLabelValues(target).Set(value)
}

// RecordHeartbeat stamps the heartbeat gauge with the current time.
func (m *ConsumerMetrics) RecordHeartbeat() {
	m.LastHeartbeat.SetToCurrentTime()
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap supports http.ResponseController and middleware that unwrap writers.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
