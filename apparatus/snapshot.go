package apparatus

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

// Snapshot reads the point telemetry named by req in one pass.
// Counters and spectra are read concurrently. Spectrum indices are range
// checked against NUMSPECTRA on the first call.
func (a *Apparatus) Snapshot(ctx context.Context, req types.SnapshotRequest) (*types.Point, error) {
	if err := a.checkSpectra(ctx, req.Spectra); err != nil {
		return nil, err
	}

	p := &types.Point{
		Period:  req.Period,
		Spectra: make(map[int][]float64, len(req.Spectra)),
	}
	if req.TOF {
		p.TOF = make(map[int][]float64, len(req.Spectra))
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.snapshotConcurrency)

	g.Go(func() error {
		rs, err := a.RunState(gctx)
		p.RunState = rs
		return err
	})
	g.Go(func() error {
		n, err := a.ReadInt(gctx, telemetry.PathGoodFrames)
		p.GoodFrames = n
		return err
	})
	g.Go(func() error {
		n, err := a.ReadInt(gctx, telemetry.PathRawFrames)
		p.RawFrames = n
		return err
	})
	g.Go(func() error {
		n, err := a.ReadInt(gctx, telemetry.PathPeriodGoodFrames)
		p.PeriodGoodFrames = n
		return err
	})
	g.Go(func() error {
		f, err := a.ReadFloat(gctx, telemetry.PathGoodUAH)
		p.GoodUAH = f
		return err
	})

	for _, spec := range req.Spectra {
		g.Go(func() error {
			counts, err := a.ReadFloats(gctx, telemetry.SpectrumCountsPath(req.Period, spec))
			if err != nil {
				return fmt.Errorf("spectrum %d: %w", spec, err)
			}
			mu.Lock()
			p.Spectra[spec] = counts
			mu.Unlock()
			return nil
		})
		if !req.TOF {
			continue
		}
		g.Go(func() error {
			edges, err := a.ReadFloats(gctx, telemetry.SpectrumTOFPath(req.Period, spec))
			if err != nil {
				return fmt.Errorf("spectrum %d time of flight: %w", spec, err)
			}
			mu.Lock()
			p.TOF[spec] = edges
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return p, nil
}

// checkSpectra validates indices against 0..NUMSPECTRA, reading NUMSPECTRA once.
func (a *Apparatus) checkSpectra(ctx context.Context, sel types.SpectrumSelection) error {
	if len(sel) == 0 {
		return nil
	}
	if err := sel.Validate(); err != nil {
		return types.NewConfigError("snapshot", "%v", err)
	}
	a.mu.Lock()
	n := a.numSpectra
	a.mu.Unlock()

	if n < 0 {
		read, err := a.NumSpectra(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		a.mu.Lock()
		a.numSpectra = read
		a.mu.Unlock()
		n = read
	}

	if hi := sel.Max(); hi > n {
		return types.NewConfigError("snapshot", "spectrum %d out of range 0..%d", hi, n)
	}
	return nil
}
