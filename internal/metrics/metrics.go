// Package metrics counts bridge activity on a private prometheus registry.
// The shared library lives inside a foreign host process, so nothing is
// registered on the global default registry; Text renders the exposition
// format for callers that want to scrape it.
package metrics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Detection outcomes used as the "status" label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds every collector the bridge updates.
type Metrics struct {
	registry *prometheus.Registry

	detectorsCreated  *prometheus.CounterVec
	detectorsReleased prometheus.Counter
	detectorsLive     prometheus.Gauge
	detections        *prometheus.CounterVec
	symbolsDetected   prometheus.Histogram
	inferenceDuration prometheus.Histogram
	errors            *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. withRuntime adds the Go
// runtime collector.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		detectorsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotit_detectors_created_total",
				Help: "Detector init attempts by outcome",
			},
			[]string{"status"},
		),
		detectorsReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "spotit_detectors_released_total",
			Help: "Detector handles released",
		}),
		detectorsLive: f.NewGauge(prometheus.GaugeOpts{
			Name: "spotit_detectors_live",
			Help: "Detector handles currently registered",
		}),
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotit_detections_total",
				Help: "Detection calls by outcome",
			},
			[]string{"status"},
		),
		symbolsDetected: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spotit_symbols_per_detection",
			Help:    "Symbols returned per successful detection call",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		inferenceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spotit_detection_duration_seconds",
			Help:    "Wall time of detection calls",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotit_errors_total",
				Help: "Failed bridge calls by error kind",
			},
			[]string{"kind"},
		),
	}
}

// DetectorCreated records an init attempt.
func (m *Metrics) DetectorCreated(ok bool, live int) {
	m.detectorsCreated.WithLabelValues(status(ok)).Inc()
	m.detectorsLive.Set(float64(live))
}

// DetectorReleased records a release that removed a handle.
func (m *Metrics) DetectorReleased(live int) {
	m.detectorsReleased.Inc()
	m.detectorsLive.Set(float64(live))
}

// DetectorsClosed records a bulk release that left no live handles.
func (m *Metrics) DetectorsClosed(n int) {
	m.detectorsReleased.Add(float64(n))
	m.detectorsLive.Set(0)
}

// Detection records one detection call.
func (m *Metrics) Detection(ok bool, symbols int, d time.Duration) {
	m.detections.WithLabelValues(status(ok)).Inc()
	m.inferenceDuration.Observe(d.Seconds())
	if ok {
		m.symbolsDetected.Observe(float64(symbols))
	}
}

// Error counts a failure of the given kind.
func (m *Metrics) Error(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Text renders all metrics in the Prometheus text exposition format.
func (m *Metrics) Text() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

func status(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusError
}
