package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

func TestCounterWaiter_ExactlyFivePolls(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	if err := rig.app.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	rig.clock.OnAfter(func(int) { rig.sim.Advance(100) })

	m := metrics.NewCollector(metrics.Dimensions{})
	w, err := NewGoodFramesWaiter(500, CounterWaiterConfig{Metrics: m})
	if err != nil {
		t.Fatalf("NewGoodFramesWaiter: %v", err)
	}
	if err := w.Wait(ctx, rig.app); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	waits := rig.clock.Waits()
	if len(waits) != 5 {
		t.Fatalf("polls = %d, want 5", len(waits))
	}
	for i, d := range waits {
		if d != DefaultPollInterval {
			t.Errorf("poll %d interval = %s, want %s", i, d, DefaultPollInterval)
		}
	}
	if got := m.Snapshot().WaiterPolls; got != 5 {
		t.Errorf("WaiterPolls = %d, want 5", got)
	}
}

func TestCounterWaiter_BaselineFromPointStart(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	if err := rig.app.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	rig.sim.Advance(100)
	rig.clock.OnAfter(func(int) { rig.sim.Advance(10) })

	w, _ := NewGoodFramesWaiter(50, CounterWaiterConfig{})
	if err := w.Wait(ctx, rig.app); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	frames, _ := rig.app.GoodFrames(ctx)
	if frames != 150 {
		t.Errorf("completed at %d good frames, want 150", frames)
	}
	if polls := len(rig.clock.Waits()); polls != 5 {
		t.Errorf("polls = %d, want 5", polls)
	}
}

// sequence drives a counter through vals, one value per poll.
func sequence(rig *simRig, path string, baseline float64, vals ...float64) {
	rig.port.MustSet(path, baseline)
	rig.clock.OnAfter(func(n int) {
		i := n - 1
		if i >= len(vals) {
			i = len(vals) - 1
		}
		rig.port.MustSet(path, vals[i])
	})
}

func TestCounterWaiter_DecreaseKeepsProgress(t *testing.T) {
	rig := newBareRig(t)
	// 30 frames of progress, then the counter restarts from 20; 20 more
	// frames (to 40) complete the target of 50.
	sequence(rig, telemetry.PathGoodFrames, 100, 130, 20, 30, 40, 1000)

	m := metrics.NewCollector(metrics.Dimensions{})
	w, _ := NewGoodFramesWaiter(50, CounterWaiterConfig{Metrics: m})
	if err := w.Wait(t.Context(), rig.app); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if polls := len(rig.clock.Waits()); polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
	if got := m.Snapshot().CounterDecreases; got != 1 {
		t.Errorf("CounterDecreases = %d, want 1", got)
	}
}

func TestCounterWaiter_DecreaseWithoutRecoveryTimesOut(t *testing.T) {
	rig := newBareRig(t)
	sequence(rig, telemetry.PathGoodFrames, 100, 110, 50, 50, 50, 50, 50)

	w, _ := NewGoodFramesWaiter(1000, CounterWaiterConfig{DecreaseGrace: 100 * time.Millisecond})
	err := w.Wait(t.Context(), rig.app)
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Wait = %v, want ErrTimeout", err)
	}
	// Decrease seen on poll 2; grace elapses two intervals later.
	if polls := len(rig.clock.Waits()); polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
}

func TestCounterWaiter_IncreaseClosesGraceWindow(t *testing.T) {
	rig := newBareRig(t)
	sequence(rig, telemetry.PathGoodFrames, 100, 90, 95, 95, 95, 95, 95, 200)

	w, _ := NewGoodFramesWaiter(100, CounterWaiterConfig{DecreaseGrace: 100 * time.Millisecond})
	if err := w.Wait(t.Context(), rig.app); err != nil {
		t.Fatalf("Wait = %v, want success after recovery", err)
	}
}

func TestCounterWaiter_Timeout(t *testing.T) {
	rig := newBareRig(t)
	rig.port.MustSet(telemetry.PathGoodFrames, int64(0))

	w, _ := NewGoodFramesWaiter(10, CounterWaiterConfig{Timeout: 200 * time.Millisecond})
	err := w.Wait(t.Context(), rig.app)
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Wait = %v, want ErrTimeout", err)
	}
	if polls := len(rig.clock.Waits()); polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
}

func TestCounterWaiter_CancellationLeavesRunRunning(t *testing.T) {
	rig := newSimRig(t)
	if err := rig.app.BeginRun(t.Context()); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	rig.clock.OnAfter(func(n int) {
		rig.sim.Advance(1)
		if n == 3 {
			cancel()
		}
	})

	w, _ := NewGoodFramesWaiter(1_000_000, CounterWaiterConfig{})
	err := w.Wait(ctx, rig.app)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
	if polls := len(rig.clock.Waits()); polls > 4 {
		t.Errorf("polls after cancel = %d, want at most one more poll", polls)
	}
	if rig.sim.State() != types.RunStateRunning {
		t.Errorf("state = %s, want RUNNING", rig.sim.State())
	}
}

func TestCounterWaiter_Variants(t *testing.T) {
	ctx := t.Context()
	tests := []struct {
		name    string
		counter Counter
		path    string
		signal  string
	}{
		{"period good frames", CounterPeriodGoodFrames, telemetry.PathPeriodGoodFrames, "period_good_frames"},
		{"good uah", CounterGoodUAH, telemetry.PathGoodUAH, "good_uah"},
		{"mevents", CounterMEvents, telemetry.PathMEvents, "m_events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newBareRig(t)
			sequence(rig, tt.path, 0.5, 1.0, 1.5, 2.0)

			w, err := NewCounterWaiter(tt.counter, 1.5, CounterWaiterConfig{})
			if err != nil {
				t.Fatalf("NewCounterWaiter: %v", err)
			}
			if err := w.Wait(ctx, rig.app); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if polls := len(rig.clock.Waits()); polls != 3 {
				t.Errorf("polls = %d, want 3", polls)
			}
			readables := w.ExtraReadables(rig.app)
			if len(readables) != 1 || readables[0].Name() != tt.signal {
				t.Errorf("readables = %v, want %s", readables, tt.signal)
			}
		})
	}
}

func TestNewCounterWaiter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		counter Counter
		target  float64
		cfg     CounterWaiterConfig
	}{
		{"zero target", CounterGoodFrames, 0, CounterWaiterConfig{}},
		{"negative target", CounterGoodUAH, -1, CounterWaiterConfig{}},
		{"unknown counter", Counter("dwell"), 10, CounterWaiterConfig{}},
		{"negative interval", CounterGoodFrames, 10, CounterWaiterConfig{PollInterval: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCounterWaiter(tt.counter, tt.target, tt.cfg); !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestTimeWaiter(t *testing.T) {
	rig := newBareRig(t)

	w, err := NewTimeWaiter(3 * time.Second)
	if err != nil {
		t.Fatalf("NewTimeWaiter: %v", err)
	}
	if err := w.Wait(t.Context(), rig.app); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	waits := rig.clock.Waits()
	if len(waits) != 1 || waits[0] != 3*time.Second {
		t.Errorf("waits = %v, want [3s]", waits)
	}
	if got := rig.port.Triggers(); len(got) != 0 {
		t.Errorf("time waiter touched the apparatus: %v", got)
	}

	if _, err := NewTimeWaiter(0); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("NewTimeWaiter(0) = %v, want ErrConfiguration", err)
	}
}

func TestTimeWaiter_Cancelled(t *testing.T) {
	rig := newSimRig(t)
	w, _ := NewTimeWaiter(time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	// Real clock: the hour never elapses, cancellation must win.
	rig.app = newRealClockApp(rig)
	if err := w.Wait(ctx, rig.app); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}
