// File: internal/observability/metrics.go
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "quizwalk"

// Metrics holds the traversal collectors. A nil *Metrics is valid and records nothing,
// so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	steps             *prometheus.CounterVec
	terminations      *prometheus.CounterVec
	backtracks        prometheus.Counter
	stalls            prometheus.Counter
	candidatesApplied prometheus.Counter
	artifacts         prometheus.Counter
	checkpoints       *prometheus.CounterVec
	stackDepth        prometheus.Gauge
	frontierPages     prometheus.Gauge
}

// NewMetrics registers every collector on a dedicated registry, alongside the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "steps_total",
			Help:      "Traversal steps taken, by the phase the step entered.",
		}, []string{"phase"}),
		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "terminations_total",
			Help:      "Runs that reached a terminal state, by reason.",
		}, []string{"reason"}),
		backtracks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "backtracks_total",
			Help:      "Pages retired and backed out of.",
		}),
		stalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stalls_total",
			Help:      "Forward navigations that did not change the page.",
		}),
		candidatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "candidates_applied_total",
			Help:      "Candidates applied to pages.",
		}),
		artifacts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifacts_captured_total",
			Help:      "Target submissions recorded by this process.",
		}),
		checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_total",
			Help:      "State checkpoints written, by outcome.",
		}, []string{"outcome"}),
		stackDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "decision_stack_depth",
			Help:      "Current depth of the decision stack.",
		}),
		frontierPages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "frontier_pages",
			Help:      "Pages currently holding a frontier entry.",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveStep(phase string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveTerminal(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBacktrack() {
	if m == nil {
		return
	}
	m.backtracks.Inc()
}

func (m *Metrics) ObserveStall() {
	if m == nil {
		return
	}
	m.stalls.Inc()
}

func (m *Metrics) ObserveApply() {
	if m == nil {
		return
	}
	m.candidatesApplied.Inc()
}

func (m *Metrics) ObserveArtifact() {
	if m == nil {
		return
	}
	m.artifacts.Inc()
}

func (m *Metrics) ObserveCheckpoint(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.checkpoints.WithLabelValues(outcome).Inc()
}

// SetTraversalSize updates the stack depth and frontier size gauges.
func (m *Metrics) SetTraversalSize(depth, pages int) {
	if m == nil {
		return
	}
	m.stackDepth.Set(float64(depth))
	m.frontierPages.Set(float64(pages))
}
