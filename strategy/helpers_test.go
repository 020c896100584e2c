package strategy

import (
	"testing"
	"time"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/clock"
	"github.com/pithecene-io/tally/telemetry"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type simRig struct {
	port  *telemetry.MemoryPort
	sim   *telemetry.Simulator
	clock *clock.Fake
	app   *apparatus.Apparatus
}

func newSimRig(t *testing.T) *simRig {
	t.Helper()
	port := telemetry.NewMemoryPort()
	sim := telemetry.NewSimulator(port, telemetry.SimulatorConfig{
		NumSpectra:      8,
		NumTimeChannels: 4,
		NumPeriods:      3,
		RunNumber:       7,
		Rates:           map[int]float64{1: 2, 2: 8},
		MonitorSpectrum: 1,
	})
	clk := clock.NewFake(epoch)
	return &simRig{
		port:  port,
		sim:   sim,
		clock: clk,
		app:   apparatus.New(port, apparatus.WithClock(clk)),
	}
}

// newBareRig has no simulator: tests drive signal values directly.
func newBareRig(t *testing.T) *simRig {
	t.Helper()
	port := telemetry.NewMemoryPort()
	clk := clock.NewFake(epoch)
	return &simRig{
		port:  port,
		clock: clk,
		app:   apparatus.New(port, apparatus.WithClock(clk)),
	}
}

func newRealClockApp(rig *simRig) *apparatus.Apparatus {
	return apparatus.New(rig.port)
}
