package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry so tests can
// build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	CallsProcessed *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	CallScore      *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		CallsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_calls_processed_total",
			Help: "Calls run through the pipeline by provider, rubric and outcome",
		}, []string{"provider", "rubric", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_insights_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_stage_failures_total",
			Help: "Pipeline failures by stage",
		}, []string{"stage"}),
		CallScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_insights_call_total_score",
			Help:    "Model-provided total score of bucket rubric calls",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}, []string{"rubric"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_insights_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.CallsProcessed, m.StageDuration, m.StageFailures, m.CallScore, m.HTTPRequests, m.HTTPRequestDuration)
	return m
}

// ObserveStage records how long stage took and whether it failed.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
