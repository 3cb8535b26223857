// Package metrics collects run metrics and writes them in the Prometheus
// text exposition format for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "annforge"

// Unit outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Metrics holds the run collectors. A nil *Metrics discards observations.
type Metrics struct {
	reg         *prometheus.Registry
	units       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	annotations *prometheus.CounterVec
	groups      prometheus.Counter
	slides      prometheus.Counter
	duration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Conversion units by kind and outcome.",
		}, []string{"kind", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed units by pipeline stage.",
		}, []string{"stage"}),
		annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotations_total",
			Help:      "Annotations encoded by unit kind.",
		}, []string{"kind"}),
		groups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_groups_total",
			Help:      "Annotation groups encoded.",
		}),
		slides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slides_total",
			Help:      "Slides processed.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to convert one unit.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
	}
	m.reg.MustRegister(m.units, m.failures, m.annotations, m.groups, m.slides, m.duration)
	return m
}

// Registry exposes the registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// SlideDone counts a processed slide.
func (m *Metrics) SlideDone() {
	if m == nil {
		return
	}
	m.slides.Inc()
}

// UnitDone records a unit written successfully.
func (m *Metrics) UnitDone(kind string, annotations, groups int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(kind, StatusOK).Inc()
	m.annotations.WithLabelValues(kind).Add(float64(annotations))
	m.groups.Add(float64(groups))
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// UnitFailed records a unit that failed in the given stage.
func (m *Metrics) UnitFailed(kind, stage string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(kind, StatusFailed).Inc()
	m.failures.WithLabelValues(stage).Inc()
}

// UnitSkipped records a unit already present in the ledger.
func (m *Metrics) UnitSkipped(kind string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(kind, StatusSkipped).Inc()
}

// WriteTextfile writes every metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
