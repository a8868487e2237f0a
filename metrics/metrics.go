// Package metrics exposes Prometheus instrumentation for the bridge. All
// recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "mecab_bridge"

// Metrics holds the bridge collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	ParseDuration  *prometheus.HistogramVec
	EngineLaunches *prometheus.CounterVec
	EngineRestarts prometheus.Counter
	EnginesLive    prometheus.Gauge
	FeatureErrors  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "total",
				Help:      "Native messaging requests handled, by action and outcome",
			},
			[]string{"action", "status"},
		),
		ParseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "parse_duration_seconds",
				Help:      "Time spent analysing one request text per dictionary",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"dictionary"},
		),
		EngineLaunches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "launches_total",
				Help:      "Tokenizer process launches, by dictionary and outcome",
			},
			[]string{"dictionary", "status"},
		),
		EngineRestarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "restarts_total",
				Help:      "Full restarts of the tokenizer process set after a failure",
			},
		),
		EnginesLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "live",
				Help:      "Tokenizer processes currently running",
			},
		),
		FeatureErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "malformed_lines_total",
				Help:      "Tokenizer output lines skipped because they could not be parsed",
			},
			[]string{"dictionary"},
		),
	}
	m.registry.MustRegister(
		m.Requests,
		m.ParseDuration,
		m.EngineLaunches,
		m.EngineRestarts,
		m.EnginesLive,
		m.FeatureErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RequestHandled(action, status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(action, status).Inc()
}

func (m *Metrics) ParseObserved(dictionary string, d time.Duration) {
	if m == nil {
		return
	}
	m.ParseDuration.WithLabelValues(dictionary).Observe(d.Seconds())
}

func (m *Metrics) EngineLaunched(dictionary string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EngineLaunches.WithLabelValues(dictionary, status).Inc()
}

func (m *Metrics) EngineRestarted() {
	if m == nil {
		return
	}
	m.EngineRestarts.Inc()
}

func (m *Metrics) SetEnginesLive(n int) {
	if m == nil {
		return
	}
	m.EnginesLive.Set(float64(n))
}

func (m *Metrics) MalformedLine(dictionary string) {
	if m == nil {
		return
	}
	m.FeatureErrors.WithLabelValues(dictionary).Inc()
}
