package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metric names as constants for consistency.
const (
	MetricSealingStagesTotal     = "sealing_pipeline_stages_total"
	MetricSealingFailuresTotal   = "sealing_pipeline_failures_total"
	MetricSealingDurationSeconds = "sealing_pipeline_duration_seconds"
)

// Status constants for stage completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for the sealing pipeline.
// All operations are thread-safe. A nil *Metrics is a no-op.
type Metrics struct {
	stagesTotal   *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSealingStagesTotal,
				Help: "Total number of sealing pipeline stage outcomes by stage and status",
			},
			[]string{"stage", "status"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSealingFailuresTotal,
				Help: "Total number of sealing pipeline failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSealingDurationSeconds,
				Help:    "Histogram of end-to-end sealing pipeline duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncStage increments the stage outcome counter.
func (m *Metrics) IncStage(stage, status string) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(stage, status).Inc()
}

// IncFailures increments the failure counter.
func (m *Metrics) IncFailures(stage, kind string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(stage, kind).Inc()
}

// ObserveDuration records an end-to-end duration sample.
func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.stagesTotal,
		m.failuresTotal,
		m.duration,
	}
}
