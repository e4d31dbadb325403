// Package metrics exposes Prometheus collectors for analysis runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for analysis activity
type Metrics struct {
	registry *prometheus.Registry

	analysesTotal    *prometheus.CounterVec   // Completed analyses by result (ok, error)
	analysisDuration *prometheus.HistogramVec // Wall time per phase (stats, higuchi, persist, total)
	segmentsTotal    prometheus.Counter       // Segments processed
	rejectedTotal    prometheus.Counter       // Baseline segments rejected as artifacts
	unlockedTotal    prometheus.Counter       // Analyses where the baseline never locked
	runsStored       prometheus.Gauge         // Runs currently in the store
}

// New creates collectors on a fresh registry, including Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		analysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signallab",
			Name:      "analyses_total",
			Help:      "Completed analyses by result",
		}, []string{"result"}),
		analysisDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "signallab",
			Name:      "analysis_phase_seconds",
			Help:      "Time spent in each analysis phase",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"phase"}),
		segmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "signallab",
			Name:      "segments_total",
			Help:      "Segments processed",
		}),
		rejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "signallab",
			Name:      "baseline_rejected_segments_total",
			Help:      "Segments rejected by the baseline estimator while tracking",
		}),
		unlockedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "signallab",
			Name:      "baseline_unlocked_analyses_total",
			Help:      "Analyses in which no segment qualified as baseline",
		}),
		runsStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "signallab",
			Name:      "runs_stored",
			Help:      "Runs currently held by the result store",
		}),
	}
}

// ObservePhase records the duration of one analysis phase
func (m *Metrics) ObservePhase(phase string, seconds float64) {
	m.analysisDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordAnalysis records a finished analysis
func (m *Metrics) RecordAnalysis(err error, segments, rejected int, locked bool) {
	if err != nil {
		m.analysesTotal.WithLabelValues("error").Inc()
		return
	}
	m.analysesTotal.WithLabelValues("ok").Inc()
	m.segmentsTotal.Add(float64(segments))
	m.rejectedTotal.Add(float64(rejected))
	if !locked {
		m.unlockedTotal.Inc()
	}
}

// SetRunsStored sets the stored run gauge
func (m *Metrics) SetRunsStored(n int) {
	m.runsStored.Set(float64(n))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
