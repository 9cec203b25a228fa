// Package metrics records counters and timings of reduction runs and writes
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	analysesReduced prometheus.Counter
	diagnostics     *prometheus.CounterVec
	runs            *prometheus.CounterVec
	fitIterations   prometheus.Gauge
	fitRedChiSq     prometheus.Gauge
	stepDuration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		analysesReduced: f.NewCounter(prometheus.CounterOpts{
			Name: "d47crunch_analyses_reduced_total",
			Help: "Total number of analyses reduced to raw Δ47",
		}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "d47crunch_diagnostics_total",
			Help: "Non-fatal diagnostics emitted during reduction",
		}, []string{"kind"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "d47crunch_runs_total",
			Help: "Reduction runs by standardization method and outcome",
		}, []string{"method", "status"}),
		fitIterations: f.NewGauge(prometheus.GaugeOpts{
			Name: "d47crunch_fit_iterations",
			Help: "Solver iterations of the last standardization",
		}),
		fitRedChiSq: f.NewGauge(prometheus.GaugeOpts{
			Name: "d47crunch_fit_reduced_chisq",
			Help: "Reduced chi-square of the last standardization",
		}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "d47crunch_step_duration_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}, []string{"step"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// AnalysesReduced adds n reduced analyses.
func (m *Metrics) AnalysesReduced(n int) { m.analysesReduced.Add(float64(n)) }

// Diagnostic counts one diagnostic of the given kind.
func (m *Metrics) Diagnostic(kind string) { m.diagnostics.WithLabelValues(kind).Inc() }

// Run counts a finished run.
func (m *Metrics) Run(method, status string) { m.runs.WithLabelValues(method, status).Inc() }

// Fit records the outcome of the last standardization.
func (m *Metrics) Fit(iterations int, redChiSq float64) {
	m.fitIterations.Set(float64(iterations))
	m.fitRedChiSq.Set(redChiSq)
}

// ObserveStep records the duration of a pipeline step.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// WriteTextfile writes all metrics to path, atomically replacing it.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
