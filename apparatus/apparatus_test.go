package apparatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

func newSimApparatus(t *testing.T) (*Apparatus, *telemetry.Simulator, *telemetry.MemoryPort) {
	t.Helper()
	port := telemetry.NewMemoryPort()
	sim := telemetry.NewSimulator(port, telemetry.SimulatorConfig{
		NumSpectra:      4,
		NumTimeChannels: 5,
		NumPeriods:      2,
		RunNumber:       7,
		Rates:           map[int]float64{1: 5, 2: 10},
		MonitorSpectrum: 1,
	})
	return New(port), sim, port
}

func TestApparatus_ControlsAndState(t *testing.T) {
	ctx := t.Context()
	a, _, _ := newSimApparatus(t)

	rs, err := a.RunState(ctx)
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if rs != types.RunStateIdle {
		t.Errorf("RunState = %s, want SETUP", rs)
	}

	if err := a.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	got, err := a.WaitForRunState(ctx, time.Second, types.RunStateRunning)
	if err != nil {
		t.Fatalf("WaitForRunState: %v", err)
	}
	if got != types.RunStateRunning {
		t.Errorf("state = %s, want RUNNING", got)
	}

	if err := a.PauseRun(ctx); err != nil {
		t.Fatalf("PauseRun: %v", err)
	}
	if err := a.ResumeRun(ctx); err != nil {
		t.Fatalf("ResumeRun: %v", err)
	}
	if err := a.EndRun(ctx); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	n, err := a.RunNumber(ctx)
	if err != nil || n != 8 {
		t.Errorf("RunNumber = %d, %v; want 8", n, err)
	}
}

func TestApparatus_BeginRunExPaused(t *testing.T) {
	ctx := t.Context()
	a, sim, _ := newSimApparatus(t)

	if err := a.BeginRunEx(ctx, BeginPaused); err != nil {
		t.Fatalf("BeginRunEx: %v", err)
	}
	if sim.State() != types.RunStatePaused {
		t.Errorf("state = %s, want PAUSED", sim.State())
	}
}

func TestApparatus_WaitForTimeout(t *testing.T) {
	a, _, _ := newSimApparatus(t)

	_, err := a.WaitForRunState(t.Context(), 20*time.Millisecond, types.RunStateRunning)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForRunState = %v, want DeadlineExceeded", err)
	}
}

func TestApparatus_SetNumPeriods(t *testing.T) {
	ctx := t.Context()
	a, _, _ := newSimApparatus(t)

	if err := a.SetNumPeriods(ctx, 5); err != nil {
		t.Fatalf("SetNumPeriods: %v", err)
	}
	n, _ := a.NumPeriods(ctx)
	if n != 5 {
		t.Errorf("NumPeriods = %d, want 5", n)
	}
	if err := a.SetNumPeriods(ctx, 0); err == nil {
		t.Error("expected rejection of zero periods")
	}
}

func TestApparatus_Snapshot(t *testing.T) {
	ctx := t.Context()
	a, sim, _ := newSimApparatus(t)

	if err := a.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	sim.Advance(10)

	p, err := a.Snapshot(ctx, types.SnapshotRequest{Spectra: types.SpectrumSelection{1, 2, 0}})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if p.GoodFrames != 10 || p.RawFrames != 10 || p.PeriodGoodFrames != 10 {
		t.Errorf("frames = %d/%d/%d, want 10/10/10", p.GoodFrames, p.RawFrames, p.PeriodGoodFrames)
	}
	if p.RunState != types.RunStateRunning {
		t.Errorf("RunState = %s", p.RunState)
	}
	det, err := p.SumSpectra(types.SpectrumSelection{2})
	if err != nil {
		t.Fatalf("SumSpectra: %v", err)
	}
	if det != 100 {
		t.Errorf("spectrum 2 integral = %v, want 100", det)
	}
	if len(p.Spectra) != 3 {
		t.Errorf("captured %d spectra, want 3", len(p.Spectra))
	}
}

func TestApparatus_SnapshotRangeCheck(t *testing.T) {
	a, _, _ := newSimApparatus(t)

	_, err := a.Snapshot(t.Context(), types.SnapshotRequest{Spectra: types.SpectrumSelection{1, 5}})
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Snapshot = %v, want ErrConfiguration", err)
	}
	// Highest spectrum number is addressable.
	if _, err := a.Snapshot(t.Context(), types.SnapshotRequest{Spectra: types.SpectrumSelection{4}}); err != nil {
		t.Errorf("Snapshot of spectrum 4: %v", err)
	}
}

func TestApparatus_SnapshotRejectsMalformedSelection(t *testing.T) {
	a, _, _ := newSimApparatus(t)

	for _, sel := range []types.SpectrumSelection{{-1}, {2, 2}} {
		_, err := a.Snapshot(t.Context(), types.SnapshotRequest{Spectra: sel})
		if !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("Snapshot(%v) = %v, want ErrConfiguration", sel, err)
		}
	}
}

func TestApparatus_SnapshotTOF(t *testing.T) {
	ctx := t.Context()
	a, sim, _ := newSimApparatus(t)

	if err := a.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	sim.Advance(10)

	plain, err := a.Snapshot(ctx, types.SnapshotRequest{Spectra: types.SpectrumSelection{2}})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if plain.TOF != nil {
		t.Error("bin edges read without being requested")
	}

	p, err := a.Snapshot(ctx, types.SnapshotRequest{Spectra: types.SpectrumSelection{2}, TOF: true})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	edges := p.TOF[2]
	if len(edges) != len(p.Spectra[2])+1 {
		t.Fatalf("%d edges for %d channels", len(edges), len(p.Spectra[2]))
	}
	// Five 100 µs channels each hold 20 counts; [50, 250) covers one whole
	// channel and two halves.
	got, err := p.SumSpectraWithin(types.SpectrumSelection{2}, types.TOFWindow{Lo: 50, Hi: 250})
	if err != nil {
		t.Fatalf("SumSpectraWithin: %v", err)
	}
	if got != 40 {
		t.Errorf("windowed sum = %v, want 40", got)
	}
}

func TestSignal_Read(t *testing.T) {
	ctx := t.Context()
	a, _, _ := newSimApparatus(t)

	s := a.RunNumberSignal()
	if s.Name() != "run_number" || s.Describe().Dtype != types.DtypeInteger {
		t.Errorf("descriptor = %+v", s.Describe())
	}
	r, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Value != int64(7) {
		t.Errorf("value = %#v, want 7", r.Value)
	}
	if r.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
