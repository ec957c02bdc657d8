package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe("infer_reply", 500)
	w.Observe("infer_reply", 700)
	w.Observe("infer_reply", 900)
	w.ObserveIndicator("inference_error_text")
	w.ObserveIndicator("inference_error_text")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "infer_reply" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "infer_reply")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 4000 {
		t.Fatalf("TargetP95MS = %.2f, want 4000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestTurnStageWindowCountsSamplesOverBudget(t *testing.T) {
	w := newTurnStageWindow(8)
	for _, ms := range []float64{10, 50, 51, 200} {
		w.Observe("append_user", ms)
	}
	w.Observe("custom_stage", 99999)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	byName := map[string]TurnStageStats{}
	for _, s := range snap.Stages {
		byName[s.Stage] = s
	}
	if got := byName["append_user"].OverTarget; got != 2 {
		t.Fatalf("append_user OverTarget = %d, want 2", got)
	}
	if got := byName["custom_stage"]; got.TargetP95MS != 0 || got.OverTarget != 0 {
		t.Fatalf("custom_stage = %+v, want no budget", got)
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe("turn_total", 1)
	w.Observe("turn_total", 2)
	w.Observe("turn_total", 3)

	snap := w.Snapshot()
	if snap.Stages[0].Samples != 2 {
		t.Fatalf("Samples = %d, want 2", snap.Stages[0].Samples)
	}
	if snap.Stages[0].AvgMS != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5", snap.Stages[0].AvgMS)
	}
	if snap.Stages[0].LastMS != 3 {
		t.Fatalf("LastMS = %.2f, want 3", snap.Stages[0].LastMS)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("ok")
	m.ObserveTurnStage("turn_total", time.Second)
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot stages = %d, want 0", len(snap.Stages))
	}
}

func TestMetricsStageSamplesInMilliseconds(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())
	m.ObserveTurnStage("append_user", 1500*time.Microsecond)
	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 1.5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
