package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_ExposesCounters(t *testing.T) {
	c := NewCollector(testDims())
	reg := prometheus.NewPedanticRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.IncPointTriggered()
	c.IncPointTriggered()
	c.IncWaiterPoll()
	c.IncPointFailed("timeout")

	expected := `
# HELP tally_points_triggered_total Acquisition points triggered.
# TYPE tally_points_triggered_total counter
tally_points_triggered_total{controller="run_per_point",instrument="LOQ",reducer="good_frames_normalizer",waiter="good_frames"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tally_points_triggered_total"); err != nil {
		t.Errorf("points_triggered_total mismatch: %v", err)
	}

	count, err := testutil.GatherAndCount(reg, "tally_points_failed_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != len(FailureKinds) {
		t.Errorf("points_failed_total series = %d, want %d", count, len(FailureKinds))
	}
}

func TestRegister_DuplicateFails(t *testing.T) {
	c := NewCollector(testDims())
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := c.Register(reg); err == nil {
		t.Error("expected error registering the same collector twice")
	}
}

func TestRegister_NilCollector(t *testing.T) {
	var c *Collector
	if err := c.Register(prometheus.NewRegistry()); err == nil {
		t.Error("expected error for nil collector")
	}
}
