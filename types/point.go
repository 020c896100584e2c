package types

import (
	"fmt"
	"slices"
	"time"
)

// SpectrumSelection is an ordered set of spectrum indices.
// Range checking against the apparatus spectrum count happens on first read,
// since the apparatus is not necessarily reachable at construction.
type SpectrumSelection []int

// NewSpectrumSelection validates indices and removes duplicates, keeping first-seen order.
func NewSpectrumSelection(indices ...int) (SpectrumSelection, error) {
	seen := make(map[int]bool, len(indices))
	sel := make(SpectrumSelection, 0, len(indices))
	for _, i := range indices {
		if i < 0 {
			return nil, NewConfigError("spectrum_selection", "spectrum index must be >= 0, got %d", i)
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		sel = append(sel, i)
	}
	return sel, nil
}

// Validate rejects negative and repeated indices. Selections built by hand
// rather than through NewSpectrumSelection must pass it before use.
func (s SpectrumSelection) Validate() error {
	seen := make(map[int]bool, len(s))
	for _, i := range s {
		if i < 0 {
			return NewConfigError("spectrum_selection", "spectrum index must be >= 0, got %d", i)
		}
		if seen[i] {
			return NewConfigError("spectrum_selection", "spectrum %d selected more than once", i)
		}
		seen[i] = true
	}
	return nil
}

// Max returns the largest index, or -1 for an empty selection.
func (s SpectrumSelection) Max() int {
	if len(s) == 0 {
		return -1
	}
	return slices.Max(s)
}

// Union returns the ordered union of s and other.
func (s SpectrumSelection) Union(other SpectrumSelection) SpectrumSelection {
	out := slices.Clone(s)
	for _, i := range other {
		if !slices.Contains(out, i) {
			out = append(out, i)
		}
	}
	return out
}

// SnapshotRequest declares the telemetry a reducer consumes from one point.
type SnapshotRequest struct {
	// Spectra lists every spectrum whose counts must be captured.
	Spectra SpectrumSelection
	// Period selects the hardware period to read spectra from.
	// Zero means the current period.
	Period int
	// TOF requests the time-of-flight bin edges of every spectrum as well.
	TOF bool
}

// Point is the telemetry snapshot of one acquisition point.
// It is captured once, after counting stops, and is read-only afterwards.
type Point struct {
	// Index is the zero-based position of the point within the scan.
	Index int
	// Period is the hardware period spectra were read from (0 = current).
	Period int
	// RunState is the run state at snapshot time.
	RunState RunState
	// GoodFrames is the run-level good frame counter.
	GoodFrames int64
	// RawFrames is the run-level raw frame counter.
	RawFrames int64
	// PeriodGoodFrames is the good frame counter of the current period.
	PeriodGoodFrames int64
	// GoodUAH is the run-level good proton charge in micro-amp hours.
	GoodUAH float64
	// Elapsed is the time between trigger and snapshot.
	Elapsed time.Duration
	// Spectra holds raw counts per time channel, keyed by spectrum index.
	Spectra map[int][]float64
	// TOF holds time-of-flight bin edges in microseconds, keyed by spectrum
	// index. Only populated when the request asked for it.
	TOF map[int][]float64
}

// SumSpectra sums the counts of every spectrum in sel.
// Missing spectra are an error: the snapshot must cover the selection.
func (p *Point) SumSpectra(sel SpectrumSelection) (float64, error) {
	var total float64
	for _, i := range sel {
		counts, ok := p.Spectra[i]
		if !ok {
			return 0, fmt.Errorf("spectrum %d not in snapshot", i)
		}
		for _, c := range counts {
			total += c
		}
	}
	return total, nil
}

// Integrals returns the per-spectrum integrated counts of sel, in selection order.
func (p *Point) Integrals(sel SpectrumSelection) ([]float64, error) {
	out := make([]float64, 0, len(sel))
	for _, i := range sel {
		counts, ok := p.Spectra[i]
		if !ok {
			return nil, fmt.Errorf("spectrum %d not in snapshot", i)
		}
		var sum float64
		for _, c := range counts {
			sum += c
		}
		out = append(out, sum)
	}
	return out, nil
}

// IntegralsWithin returns the per-spectrum counts of sel falling inside w, in
// selection order. Bins straddling a bound contribute the overlapping fraction
// of their counts.
func (p *Point) IntegralsWithin(sel SpectrumSelection, w TOFWindow) ([]float64, error) {
	out := make([]float64, 0, len(sel))
	bounds := []float64{w.Lo, w.Hi}
	for _, i := range sel {
		counts, ok := p.Spectra[i]
		if !ok {
			return nil, fmt.Errorf("spectrum %d not in snapshot", i)
		}
		edges, ok := p.TOF[i]
		if !ok {
			return nil, fmt.Errorf("spectrum %d has no time-of-flight edges in snapshot", i)
		}
		binned, err := Rebin(edges, counts, bounds)
		if err != nil {
			return nil, fmt.Errorf("spectrum %d: %w", i, err)
		}
		out = append(out, binned[0])
	}
	return out, nil
}

// SumSpectraWithin sums the counts of every spectrum in sel falling inside w.
func (p *Point) SumSpectraWithin(sel SpectrumSelection, w TOFWindow) (float64, error) {
	ints, err := p.IntegralsWithin(sel, w)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, v := range ints {
		total += v
	}
	return total, nil
}
