package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// value gathers reg and returns the counter or gauge value of the series of
// name whose labels match want.
func value(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.PipelineStarted()
	m.PipelineFinished("FULL", "success", 1)
	m.PipelineRejected("conflict")
	m.ReviewApplied("SCRIPT", "APPROVED")
	m.ReviewRequested("SCRIPT")
	m.SyncFailed()
}

func TestNew_UnregisteredCollectors(t *testing.T) {
	m := New(nil)
	m.PipelineStarted()
	m.PipelineFinished("FULL", "success", 1)
}

func TestPipelineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PipelineStarted()
	if got := value(t, reg, "coursereel_pipeline_active_jobs", nil); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	m.PipelineFinished("FULL", "success", 2.5)
	if got := value(t, reg, "coursereel_pipeline_active_jobs", nil); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
	if got := value(t, reg, "coursereel_pipeline_runs_total", map[string]string{"mode": "FULL", "outcome": "success"}); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := value(t, reg, "coursereel_pipeline_duration_seconds", map[string]string{"mode": "FULL"}); got != 1 {
		t.Errorf("duration samples = %v, want 1", got)
	}
	m.PipelineRejected("conflict")
	m.PipelineRejected("conflict")
	if got := value(t, reg, "coursereel_pipeline_rejections_total", map[string]string{"reason": "conflict"}); got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
}

func TestReviewCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReviewRequested("FINAL")
	m.ReviewApplied("FINAL", "APPROVED")
	m.SyncFailed()
	if got := value(t, reg, "coursereel_review_requests_total", map[string]string{"stage": "FINAL"}); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := value(t, reg, "coursereel_review_transitions_total", map[string]string{"stage": "FINAL", "status": "APPROVED"}); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := value(t, reg, "coursereel_review_sync_errors_total", nil); got != 1 {
		t.Errorf("sync errors = %v, want 1", got)
	}
}
