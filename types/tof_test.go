package types

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestRebin(t *testing.T) {
	edges := []float64{0, 10, 20, 30}
	counts := []float64{1, 2, 3}

	tests := []struct {
		name string
		dst  []float64
		want []float64
	}{
		{"whole range", []float64{0, 30}, []float64{6}},
		{"split bins", []float64{5, 25}, []float64{4}},
		{"two targets", []float64{0, 15, 30}, []float64{2, 4}},
		{"wider than source", []float64{-100, 100}, []float64{6}},
		{"outside", []float64{40, 50}, []float64{0}},
		{"aligned edge", []float64{10, 20}, []float64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rebin(edges, counts, tt.dst)
			if err != nil {
				t.Fatalf("Rebin: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Rebin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRebin_Rejects(t *testing.T) {
	if _, err := Rebin([]float64{0, 1}, []float64{1, 2}, []float64{0, 1}); err == nil {
		t.Error("edge/count length mismatch accepted")
	}
	if _, err := Rebin([]float64{0, 2, 1}, []float64{1, 2}, []float64{0, 1}); err == nil {
		t.Error("descending source edges accepted")
	}
	if _, err := Rebin([]float64{0, 1}, []float64{1}, []float64{1}); err == nil {
		t.Error("single target edge accepted")
	}
}

func TestTOFWindow_Validate(t *testing.T) {
	if err := (TOFWindow{Lo: 100, Hi: 200}).Validate(); err != nil {
		t.Errorf("valid window rejected: %v", err)
	}
	for _, w := range []TOFWindow{{Lo: 5, Hi: 5}, {Lo: 10, Hi: 1}, {Lo: math.NaN(), Hi: 1}, {Lo: 0, Hi: math.Inf(1)}} {
		if err := w.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v: err = %v, want ErrConfiguration", w, err)
		}
	}
}

func TestWavelengthWindow(t *testing.T) {
	w, err := WavelengthWindow(1, 2, 10)
	if err != nil {
		t.Fatalf("WavelengthWindow: %v", err)
	}
	// 1 Å over 10 m takes roughly 2528 µs.
	if math.Abs(w.Lo-2527.8) > 0.1 || math.Abs(w.Hi-2*w.Lo) > 1e-9 {
		t.Errorf("window = %+v", w)
	}

	if _, err := WavelengthWindow(1, 2, 0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("zero flight path: err = %v", err)
	}
	if _, err := WavelengthWindow(3, 2, 10); !errors.Is(err, ErrConfiguration) {
		t.Errorf("inverted bounds: err = %v", err)
	}
}

func TestDSpacingFromTOF_Backscattering(t *testing.T) {
	// At 2θ = 180° Bragg's law gives d = λ/2.
	tof := TOFFromWavelength(4, 12)
	if d := DSpacingFromTOF(tof, 12, math.Pi); math.Abs(d-2) > 1e-12 {
		t.Errorf("d = %v, want 2", d)
	}
}

func TestPoint_SumWithinWindow(t *testing.T) {
	p := &Point{
		Spectra: map[int][]float64{1: {1, 2, 3}, 2: {10, 10}},
		TOF:     map[int][]float64{1: {0, 10, 20, 30}, 2: {0, 20, 40}},
	}
	w := TOFWindow{Lo: 5, Hi: 25}

	ints, err := p.IntegralsWithin(SpectrumSelection{1, 2}, w)
	if err != nil {
		t.Fatalf("IntegralsWithin: %v", err)
	}
	if !slices.Equal(ints, []float64{4, 10}) {
		t.Errorf("IntegralsWithin = %v, want [4 10]", ints)
	}
	sum, err := p.SumSpectraWithin(SpectrumSelection{1, 2}, w)
	if err != nil {
		t.Fatalf("SumSpectraWithin: %v", err)
	}
	if sum != 14 {
		t.Errorf("sum = %v, want 14", sum)
	}

	noEdges := &Point{Spectra: map[int][]float64{1: {1}}}
	if _, err := noEdges.SumSpectraWithin(SpectrumSelection{1}, w); err == nil {
		t.Error("expected error for spectrum without time-of-flight edges")
	}
}
