package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.SlideDone()
	m.UnitDone("sessions", 40, 3, 200*time.Millisecond)
	m.UnitDone("sessions", 2, 1, 100*time.Millisecond)
	m.UnitFailed("rois", "encode")
	m.UnitSkipped("consensus")

	if got := testutil.ToFloat64(m.units.WithLabelValues("sessions", StatusOK)); got != 2 {
		t.Errorf("ok sessions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.annotations.WithLabelValues("sessions")); got != 42 {
		t.Errorf("annotations = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.groups); got != 4 {
		t.Errorf("groups = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("encode")); got != 1 {
		t.Errorf("encode failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.units.WithLabelValues("consensus", StatusSkipped)); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.UnitDone("rois", 5, 1, time.Second)

	path := filepath.Join(t.TempDir(), "textfile", "annforge.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`annforge_units_total{kind="rois",status="ok"} 1`,
		`annforge_annotations_total{kind="rois"} 5`,
		"annforge_unit_duration_seconds_bucket",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.SlideDone()
	m.UnitDone("rois", 1, 1, time.Second)
	m.UnitFailed("rois", "write")
	m.UnitSkipped("rois")
	if err := m.WriteTextfile("ignored.prom"); err != nil {
		t.Fatalf("nil WriteTextfile() error = %v", err)
	}
}
