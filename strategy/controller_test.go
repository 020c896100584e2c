package strategy

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

func runControls(triggers []string) []string {
	var out []string
	for _, p := range triggers {
		switch p {
		case telemetry.PathBeginRun, telemetry.PathEndRun, telemetry.PathAbortRun:
			out = append(out, p)
		}
	}
	return out
}

func TestRunPerPoint_PairsBeginAndEnd(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	m := metrics.NewCollector(metrics.Dimensions{})
	c, err := NewRunPerPoint(ControllerConfig{SaveRun: true, Metrics: m})
	if err != nil {
		t.Fatalf("NewRunPerPoint: %v", err)
	}

	const points = 4
	for i := range points {
		if err := c.StartCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d start: %v", i, err)
		}
		rig.sim.Advance(10)
		if err := c.StopCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d stop: %v", i, err)
		}
	}

	got := runControls(rig.port.Triggers())
	if len(got) != 2*points {
		t.Fatalf("run controls = %v, want %d", got, 2*points)
	}
	for i := 0; i < len(got); i += 2 {
		if got[i] != telemetry.PathBeginRun || got[i+1] != telemetry.PathEndRun {
			t.Errorf("controls[%d:%d] = %v, want [BEGINRUN ENDRUN]", i, i+2, got[i:i+2])
		}
	}

	s := m.Snapshot()
	if s.RunsBegun != points || s.RunsEnded != points {
		t.Errorf("metrics begun/ended = %d/%d, want %d/%d", s.RunsBegun, s.RunsEnded, points, points)
	}
}

func TestRunPerPoint_AbortWhenNotSaving(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: false})

	if err := c.StartCounting(ctx, rig.app); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StopCounting(ctx, rig.app); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := runControls(rig.port.Triggers())
	want := []string{telemetry.PathBeginRun, telemetry.PathAbortRun}
	if !slices.Equal(got, want) {
		t.Errorf("run controls = %v, want %v", got, want)
	}
	if readables := c.ExtraReadables(rig.app); len(readables) != 0 {
		t.Errorf("unsaved runs should publish no run number, got %d readables", len(readables))
	}
}

func TestRunPerPoint_BeginWhileActiveIsLifecycleError(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	if err := rig.app.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true})
	err := c.StartCounting(ctx, rig.app)
	if !errors.Is(err, types.ErrLifecycle) {
		t.Fatalf("StartCounting = %v, want ErrLifecycle", err)
	}

	// Nothing opened by the controller, so stopping must not end the foreign run.
	if err := c.StopCounting(ctx, rig.app); err != nil {
		t.Fatalf("StopCounting: %v", err)
	}
	if rig.sim.State() != types.RunStateRunning {
		t.Errorf("state = %s, want RUNNING", rig.sim.State())
	}
}

func TestRunPerPoint_StopWithoutOpenRunIsNoop(t *testing.T) {
	rig := newSimRig(t)
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true})

	if err := c.StopCounting(t.Context(), rig.app); err != nil {
		t.Fatalf("StopCounting: %v", err)
	}
	if got := rig.port.Triggers(); len(got) != 0 {
		t.Errorf("triggers = %v, want none", got)
	}
}

func TestRunPerPoint_RejectedBegin(t *testing.T) {
	rig := newSimRig(t)
	rig.sim.RejectBegin(errors.New("dae not configured"))
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true})

	if err := c.StartCounting(t.Context(), rig.app); !errors.Is(err, types.ErrLifecycle) {
		t.Errorf("StartCounting = %v, want ErrLifecycle", err)
	}
}

func TestRunPerPoint_TeardownClosesLeftoverRun(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true})

	if err := c.Setup(ctx, rig.app); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := c.StartCounting(ctx, rig.app); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Point interrupted: StopCounting never runs.
	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if rig.sim.State() != types.RunStateIdle {
		t.Errorf("state after teardown = %s, want SETUP", rig.sim.State())
	}
	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Errorf("second Teardown: %v", err)
	}
	_, ended, _ := rig.sim.Counts()
	if ended != 1 {
		t.Errorf("ended = %d, want 1", ended)
	}
}

func TestRunPerPoint_PublishesCountedRunNumber(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true})

	readables := c.ExtraReadables(rig.app)
	if len(readables) != 1 || readables[0].Name() != "run_number" {
		t.Fatalf("readables = %v", readables)
	}

	if err := c.StartCounting(ctx, rig.app); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StopCounting(ctx, rig.app); err != nil {
		t.Fatalf("stop: %v", err)
	}

	r, err := readables[0].Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// The apparatus has moved on to run 8; the point counted into run 7.
	if r.Value != int64(7) {
		t.Errorf("run_number = %v, want 7", r.Value)
	}
}

func TestRunPerPoint_StateTimeout(t *testing.T) {
	rig := newBareRig(t)
	rig.port.MustSet(telemetry.PathRunState, "SETUP")
	// No simulator: BEGINRUN is accepted but the state never changes.
	c, _ := NewRunPerPoint(ControllerConfig{SaveRun: true, StateTimeout: 20 * time.Millisecond})

	err := c.StartCounting(t.Context(), rig.app)
	if !errors.Is(err, types.ErrLifecycle) {
		t.Errorf("StartCounting = %v, want ErrLifecycle", err)
	}
}

func TestRunPerScan_SingleBeginAndEnd(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	c, err := NewRunPerScan(ControllerConfig{SaveRun: true})
	if err != nil {
		t.Fatalf("NewRunPerScan: %v", err)
	}

	if err := c.Setup(ctx, rig.app); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	for i := range 5 {
		if err := c.StartCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d start: %v", i, err)
		}
		rig.sim.Advance(10)
		if err := c.StopCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d stop: %v", i, err)
		}
		if got := runControls(rig.port.Triggers()); len(got) != 1 {
			t.Fatalf("after point %d run controls = %v, want only BEGINRUN", i, got)
		}
	}
	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	got := runControls(rig.port.Triggers())
	want := []string{telemetry.PathBeginRun, telemetry.PathEndRun}
	if !slices.Equal(got, want) {
		t.Errorf("run controls = %v, want %v", got, want)
	}
}

func TestPeriodPerPoint_CountsEachPointIntoItsOwnPeriod(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	m := metrics.NewCollector(metrics.Dimensions{})
	c, err := NewPeriodPerPoint(ControllerConfig{SaveRun: true, Metrics: m})
	if err != nil {
		t.Fatalf("NewPeriodPerPoint: %v", err)
	}

	if err := c.Setup(ctx, rig.app); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if rig.sim.State() != types.RunStatePaused {
		t.Fatalf("state after setup = %s, want PAUSED", rig.sim.State())
	}

	readables := c.ExtraReadables(rig.app)
	for point := 1; point <= 2; point++ {
		if err := c.StartCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d start: %v", point, err)
		}
		if rig.sim.State() != types.RunStateRunning {
			t.Errorf("point %d state = %s, want RUNNING", point, rig.sim.State())
		}
		rig.sim.Advance(int64(10 * point))
		if err := c.StopCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d stop: %v", point, err)
		}
		if rig.sim.State() != types.RunStatePaused {
			t.Errorf("point %d state after stop = %s, want PAUSED", point, rig.sim.State())
		}

		pgf, _ := rig.app.PeriodGoodFrames(ctx)
		if pgf != int64(10*point) {
			t.Errorf("point %d period good frames = %d, want %d", point, pgf, 10*point)
		}
		r, _ := readables[0].Read(ctx)
		if r.Value != int64(point) {
			t.Errorf("period_num = %v, want %d", r.Value, point)
		}
	}

	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	begun, ended, _ := rig.sim.Counts()
	if begun != 1 || ended != 1 {
		t.Errorf("begun/ended = %d/%d, want 1/1", begun, ended)
	}
	if m.Snapshot().PeriodsAdvanced != 2 {
		t.Errorf("PeriodsAdvanced = %d, want 2", m.Snapshot().PeriodsAdvanced)
	}
}

func TestPeriodPerPoint_RunsOutOfPeriods(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	c, _ := NewPeriodPerPoint(ControllerConfig{SaveRun: false})

	if err := c.Setup(ctx, rig.app); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	for point := 1; point <= 3; point++ {
		if err := c.StartCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d start: %v", point, err)
		}
		if err := c.StopCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d stop: %v", point, err)
		}
	}
	if err := c.StartCounting(ctx, rig.app); !errors.Is(err, types.ErrLifecycle) {
		t.Errorf("4th point on 3 periods = %v, want ErrLifecycle", err)
	}
	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	_, _, aborted := rig.sim.Counts()
	if aborted != 1 {
		t.Errorf("aborted = %d, want 1", aborted)
	}
}

func TestPeriodPerPoint_FailedSwitchRetriesSamePeriod(t *testing.T) {
	ctx := t.Context()
	rig := newSimRig(t)
	m := metrics.NewCollector(metrics.Dimensions{})
	c, _ := NewPeriodPerPoint(ControllerConfig{StateTimeout: time.Second, Metrics: m})

	if err := c.Setup(ctx, rig.app); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	periodNum := c.ExtraReadables(rig.app)[0]

	rig.sim.RejectPeriod(errors.New("period change refused"))
	if err := c.StartCounting(ctx, rig.app); !errors.Is(err, types.ErrLifecycle) {
		t.Fatalf("rejected switch = %v, want ErrLifecycle", err)
	}
	if r, _ := periodNum.Read(ctx); r.Value != int64(0) {
		t.Errorf("period_num after rejected switch = %v, want 0", r.Value)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := c.StartCounting(canceled, rig.app); !errors.Is(err, context.Canceled) {
		t.Fatalf("interrupted switch = %v, want context.Canceled", err)
	}

	rig.sim.RejectPeriod(nil)
	for want := 1; want <= 2; want++ {
		if err := c.StartCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d start: %v", want, err)
		}
		if r, _ := periodNum.Read(ctx); r.Value != int64(want) {
			t.Errorf("period_num = %v, want %d", r.Value, want)
		}
		if p, _ := rig.app.Period(ctx); p != want {
			t.Errorf("apparatus period = %d, want %d", p, want)
		}
		if err := c.StopCounting(ctx, rig.app); err != nil {
			t.Fatalf("point %d stop: %v", want, err)
		}
	}
	if s := m.Snapshot(); s.PeriodsAdvanced != 2 {
		t.Errorf("PeriodsAdvanced = %d, want 2", s.PeriodsAdvanced)
	}
	if err := c.Teardown(ctx, rig.app); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
}

func TestPeriodPerPoint_StartBeforeSetup(t *testing.T) {
	rig := newSimRig(t)
	c, _ := NewPeriodPerPoint(ControllerConfig{})
	if err := c.StartCounting(t.Context(), rig.app); !errors.Is(err, types.ErrLifecycle) {
		t.Errorf("StartCounting = %v, want ErrLifecycle", err)
	}
}

func TestControllerConfig_NegativeTimeout(t *testing.T) {
	if _, err := NewRunPerPoint(ControllerConfig{StateTimeout: -time.Second}); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("NewRunPerPoint = %v, want ErrConfiguration", err)
	}
}
