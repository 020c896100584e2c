package types

import (
	"fmt"
	"math"
	"slices"
)

// planckOverNeutronMass is h/m_n in angstrom metres per microsecond:
// a neutron of wavelength 1 Å covers 1 m in 1/planckOverNeutronMass µs.
const planckOverNeutronMass = 3.956034006119441e-3

// TOFWindow bounds a time-of-flight range in microseconds.
type TOFWindow struct {
	Lo float64
	Hi float64
}

// Validate requires finite bounds with Lo < Hi.
func (w TOFWindow) Validate() error {
	if !finite(w.Lo) || !finite(w.Hi) {
		return NewConfigError("tof_window", "bounds must be finite, got [%v, %v]", w.Lo, w.Hi)
	}
	if w.Lo >= w.Hi {
		return NewConfigError("tof_window", "lower bound %v must be below upper bound %v", w.Lo, w.Hi)
	}
	return nil
}

// WavelengthWindow converts a wavelength range in angstroms to the
// time-of-flight window it occupies over a flight path of ltotal metres.
func WavelengthWindow(lo, hi, ltotal float64) (TOFWindow, error) {
	if !finite(ltotal) || ltotal <= 0 {
		return TOFWindow{}, NewConfigError("wavelength_window", "flight path must be > 0 m, got %v", ltotal)
	}
	if !finite(lo) || !finite(hi) || lo < 0 || lo >= hi {
		return TOFWindow{}, NewConfigError("wavelength_window", "want 0 <= lower < upper, got [%v, %v]", lo, hi)
	}
	return TOFWindow{Lo: TOFFromWavelength(lo, ltotal), Hi: TOFFromWavelength(hi, ltotal)}, nil
}

// TOFFromWavelength returns the flight time in microseconds of a neutron of
// wavelength lambda angstroms over ltotal metres.
func TOFFromWavelength(lambda, ltotal float64) float64 {
	return lambda * ltotal / planckOverNeutronMass
}

// DSpacingFromTOF converts a flight time in microseconds to d-spacing in
// angstroms for a detector at total flight path ltotal metres and scattering
// angle twoTheta radians.
func DSpacingFromTOF(tof, ltotal, twoTheta float64) float64 {
	return planckOverNeutronMass * tof / (2 * ltotal * math.Sin(twoTheta/2))
}

// Rebin redistributes counts binned on srcEdges onto dstEdges. A source bin
// straddling a destination edge is split in proportion to the overlap; counts
// outside dstEdges are dropped. Both edge slices must be strictly ascending,
// and len(srcEdges) must be len(counts)+1.
func Rebin(srcEdges, counts, dstEdges []float64) ([]float64, error) {
	if len(srcEdges) != len(counts)+1 {
		return nil, fmt.Errorf("rebin: %d edges for %d bins", len(srcEdges), len(counts))
	}
	if len(dstEdges) < 2 {
		return nil, fmt.Errorf("rebin: need at least 2 target edges, got %d", len(dstEdges))
	}
	if !ascending(srcEdges) || !ascending(dstEdges) {
		return nil, fmt.Errorf("rebin: bin edges must be strictly ascending")
	}

	out := make([]float64, len(dstEdges)-1)
	for j, c := range counts {
		a, b := srcEdges[j], srcEdges[j+1]
		if b <= dstEdges[0] || a >= dstEdges[len(dstEdges)-1] {
			continue
		}
		// First target bin whose upper edge lies above a.
		k, _ := slices.BinarySearch(dstEdges[1:], a)
		for ; k < len(out) && dstEdges[k] < b; k++ {
			overlap := min(b, dstEdges[k+1]) - max(a, dstEdges[k])
			if overlap > 0 {
				out[k] += c * overlap / (b - a)
			}
		}
	}
	return out, nil
}

func ascending(edges []float64) bool {
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return false
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
