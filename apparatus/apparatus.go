// Package apparatus is a typed facade over a telemetry.Port naming the DAE
// signals the acquisition strategies use: run state and controls, counters,
// the period subsystem, the monitor, event mode, and spectra.
package apparatus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/tally/clock"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

// DefaultSnapshotConcurrency bounds concurrent spectrum reads in Snapshot.
const DefaultSnapshotConcurrency = 8

// Apparatus addresses one DAE through a Port.
// Independent Apparatus values share nothing.
type Apparatus struct {
	port  telemetry.Port
	clock clock.Clock

	snapshotConcurrency int

	mu         sync.Mutex
	numSpectra int // cached after the first range check, -1 until then
}

// Option configures an Apparatus.
type Option func(*Apparatus)

// WithClock sets the clock used to timestamp readings and pace waiters.
func WithClock(c clock.Clock) Option {
	return func(a *Apparatus) { a.clock = c }
}

// WithSnapshotConcurrency bounds concurrent spectrum reads.
func WithSnapshotConcurrency(n int) Option {
	return func(a *Apparatus) {
		if n > 0 {
			a.snapshotConcurrency = n
		}
	}
}

// New creates an Apparatus over port.
func New(port telemetry.Port, opts ...Option) *Apparatus {
	a := &Apparatus{
		port:                port,
		clock:               clock.Real{},
		snapshotConcurrency: DefaultSnapshotConcurrency,
		numSpectra:          -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Port returns the underlying port.
func (a *Apparatus) Port() telemetry.Port { return a.port }

// Clock returns the apparatus clock.
func (a *Apparatus) Clock() clock.Clock { return a.clock }

// ReadInt reads an integer signal.
func (a *Apparatus) ReadInt(ctx context.Context, path string) (int64, error) {
	v, err := a.port.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	n, err := telemetry.AsInt64(v)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return n, nil
}

// ReadFloat reads a numeric signal as float64.
func (a *Apparatus) ReadFloat(ctx context.Context, path string) (float64, error) {
	v, err := a.port.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	f, err := telemetry.AsFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// ReadFloats reads an array signal.
func (a *Apparatus) ReadFloats(ctx context.Context, path string) ([]float64, error) {
	v, err := a.port.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	f, err := telemetry.AsFloats(v)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// RunState reads the current run state.
func (a *Apparatus) RunState(ctx context.Context) (types.RunState, error) {
	v, err := a.port.Read(ctx, telemetry.PathRunState)
	if err != nil {
		return "", err
	}
	s, err := telemetry.AsString(v)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", telemetry.PathRunState, err)
	}
	return types.ParseRunState(s)
}

// RunNumber reads the current (or next, when idle) run number.
func (a *Apparatus) RunNumber(ctx context.Context) (int64, error) {
	return a.ReadInt(ctx, telemetry.PathRunNumber)
}

// GoodFrames reads the run good frame counter.
func (a *Apparatus) GoodFrames(ctx context.Context) (int64, error) {
	return a.ReadInt(ctx, telemetry.PathGoodFrames)
}

// PeriodGoodFrames reads the good frame counter of the current period.
func (a *Apparatus) PeriodGoodFrames(ctx context.Context) (int64, error) {
	return a.ReadInt(ctx, telemetry.PathPeriodGoodFrames)
}

// Period reads the current hardware period.
func (a *Apparatus) Period(ctx context.Context) (int, error) {
	p, err := a.ReadInt(ctx, telemetry.PathPeriod)
	return int(p), err
}

// NumPeriods reads the configured number of hardware periods.
func (a *Apparatus) NumPeriods(ctx context.Context) (int, error) {
	n, err := a.ReadInt(ctx, telemetry.PathNumPeriods)
	return int(n), err
}

// NumSpectra reads the highest addressable spectrum number.
func (a *Apparatus) NumSpectra(ctx context.Context) (int, error) {
	n, err := a.ReadInt(ctx, telemetry.PathNumSpectra)
	return int(n), err
}

// SetPeriod requests a switch to hardware period p.
func (a *Apparatus) SetPeriod(ctx context.Context, p int) error {
	return a.port.Write(ctx, telemetry.PathPeriodSetpoint, int64(p), true)
}

// SetNumPeriods configures the number of hardware periods and verifies the
// apparatus accepted it.
func (a *Apparatus) SetNumPeriods(ctx context.Context, n int) error {
	if err := a.port.Write(ctx, telemetry.PathNumPeriods, int64(n), true); err != nil {
		return err
	}
	got, err := a.NumPeriods(ctx)
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("could not set %d periods on DAE, apparatus reports %d", n, got)
	}
	return nil
}

// WaitFor blocks until the value at path satisfies pred, the timeout elapses,
// or ctx is done. A timeout of zero waits indefinitely. Returns the satisfying value.
func (a *Apparatus) WaitFor(ctx context.Context, path string, timeout time.Duration, pred func(any) bool) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch, unsubscribe, err := a.port.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	var last any
	for {
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("waiting for %s (last value %v): %w", path, last, ctx.Err())
		case v, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return last, fmt.Errorf("waiting for %s (last value %v): %w", path, last, err)
				}
				return last, fmt.Errorf("waiting for %s: subscription closed", path)
			}
			last = v
			if pred(v) {
				return v, nil
			}
		}
	}
}

// WaitForRunState blocks until the run state is one of states.
func (a *Apparatus) WaitForRunState(ctx context.Context, timeout time.Duration, states ...types.RunState) (types.RunState, error) {
	v, err := a.WaitFor(ctx, telemetry.PathRunState, timeout, func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, want := range states {
			if types.RunState(s) == want {
				return true
			}
		}
		return false
	})
	s, _ := v.(string)
	return types.RunState(s), err
}
