// Package metrics exposes prometheus collectors for the production pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors recorded by the store, executor, and
// synchronizer.
type Metrics struct {
	pipelineRuns       *prometheus.CounterVec
	pipelineRejections *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	reviewTransitions  *prometheus.CounterVec
	reviewRequests     *prometheus.CounterVec
	syncErrors         prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil registerer
// creates unregistered collectors, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coursereel",
				Name:      "pipeline_runs_total",
				Help:      "Generation jobs finished, by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		pipelineRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coursereel",
				Name:      "pipeline_rejections_total",
				Help:      "Generation jobs refused at admission, by reason.",
			},
			[]string{"reason"},
		),
		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coursereel",
				Name:      "pipeline_duration_seconds",
				Help:      "Wall-clock duration of generation jobs.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"mode"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "coursereel",
				Name:      "pipeline_active_jobs",
				Help:      "Generation jobs currently running (0 or 1).",
			},
		),
		reviewTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coursereel",
				Name:      "review_transitions_total",
				Help:      "Review decisions applied to items, by stage and decision status.",
			},
			[]string{"stage", "status"},
		),
		reviewRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coursereel",
				Name:      "review_requests_total",
				Help:      "Review requests submitted, by stage.",
			},
			[]string{"stage"},
		),
		syncErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "coursereel",
				Name:      "review_sync_errors_total",
				Help:      "Review synchronization passes that failed.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.pipelineRuns,
			m.pipelineRejections,
			m.pipelineDuration,
			m.activeJobs,
			m.reviewTransitions,
			m.reviewRequests,
			m.syncErrors,
		)
	}
	return m
}

// PipelineStarted records an admitted job.
func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

// PipelineFinished records a job outcome ("success" or "failure").
func (m *Metrics) PipelineFinished(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.pipelineRuns.WithLabelValues(mode, outcome).Inc()
	m.pipelineDuration.WithLabelValues(mode).Observe(seconds)
}

// PipelineRejected records an admission refusal.
func (m *Metrics) PipelineRejected(reason string) {
	if m == nil {
		return
	}
	m.pipelineRejections.WithLabelValues(reason).Inc()
}

// ReviewApplied records a review decision that changed an item.
func (m *Metrics) ReviewApplied(stage, status string) {
	if m == nil {
		return
	}
	m.reviewTransitions.WithLabelValues(stage, status).Inc()
}

// ReviewRequested records a submitted review request.
func (m *Metrics) ReviewRequested(stage string) {
	if m == nil {
		return
	}
	m.reviewRequests.WithLabelValues(stage).Inc()
}

// SyncFailed records a failed synchronization pass.
func (m *Metrics) SyncFailed() {
	if m == nil {
		return
	}
	m.syncErrors.Inc()
}
