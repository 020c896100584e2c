package strategy

import (
	"maps"
	"math"
	"slices"

	"github.com/pithecene-io/tally/types"
)

// Metadata channel names emitted by the normalizing reducers.
const (
	ChannelDetCounts       = "det_counts"
	ChannelDetCountsStddev = "det_counts_stddev"
	ChannelMonCounts       = "mon_counts"
	ChannelMonCountsStddev = "mon_counts_stddev"
	ChannelDetIntegrals    = "det_integrals"
	ChannelMonIntegrals    = "mon_integrals"
	ChannelDSpacing        = "dspacing"
)

// Reducer kinds.
const (
	KindGoodFramesNormalizer       = "good_frames_normalizer"
	KindPeriodGoodFramesNormalizer = "period_good_frames_normalizer"
	KindMonitorNormalizer          = "monitor_normalizer"
	KindPeriodSpecIntegrals        = "period_spec_integrals"
	KindDSpacingMapping            = "dspacing_mapping"
	KindNoop                       = "noop"
)

func countsChannel(name string) types.Descriptor {
	return types.Descriptor{Name: name, Source: "reducer", Dtype: types.DtypeNumber, Units: "counts", Precision: types.Precision(4)}
}

func arrayChannel(name string) types.Descriptor {
	return types.Descriptor{Name: name, Source: "reducer", Dtype: types.DtypeArray, Units: "counts"}
}

// ratio divides det by mon counts with Poisson uncertainties on both:
// sigma^2 = D/M^2 + D^2/M^3. Zero detector counts yield 0 +- 0.
// Callers reject mon == 0.
func ratio(det, mon float64) (value, sigma float64) {
	if det == 0 {
		return 0, 0
	}
	value = det / mon
	sigma = math.Sqrt(det/(mon*mon) + det*det/(mon*mon*mon))
	return value, sigma
}

// ReducerOption configures how a normalizing reducer sums its spectra.
type ReducerOption func(*summing)

// WithDetectorTOF restricts detector sums to counts inside w.
func WithDetectorTOF(w types.TOFWindow) ReducerOption {
	return func(s *summing) { s.detector = &w }
}

// WithMonitorTOF restricts monitor sums to counts inside w.
func WithMonitorTOF(w types.TOFWindow) ReducerOption {
	return func(s *summing) { s.monitor = &w }
}

// summing holds the optional time-of-flight windows of a reducer.
// A nil window sums every time channel.
type summing struct {
	detector *types.TOFWindow
	monitor  *types.TOFWindow
}

func newSumming(kind string, hasMonitors bool, opts []ReducerOption) (summing, error) {
	var s summing
	for _, opt := range opts {
		opt(&s)
	}
	if s.detector != nil {
		if err := s.detector.Validate(); err != nil {
			return s, types.NewConfigError("new_reducer", "%s detector window: %v", kind, err)
		}
	}
	if s.monitor != nil {
		if !hasMonitors {
			return s, types.NewConfigError("new_reducer", "%s has no monitor spectra to window", kind)
		}
		if err := s.monitor.Validate(); err != nil {
			return s, types.NewConfigError("new_reducer", "%s monitor window: %v", kind, err)
		}
	}
	return s, nil
}

// needsTOF reports whether any window requires bin edges in the snapshot.
func (s summing) needsTOF() bool {
	return s.detector != nil || s.monitor != nil
}

func integrateSelection(point *types.Point, sel types.SpectrumSelection, w *types.TOFWindow) ([]float64, error) {
	if w == nil {
		return point.Integrals(sel)
	}
	return point.IntegralsWithin(sel, *w)
}

func sumSelection(point *types.Point, sel types.SpectrumSelection, w *types.TOFWindow) (float64, error) {
	if w == nil {
		return point.SumSpectra(sel)
	}
	return point.SumSpectraWithin(sel, *w)
}

// checkSelection rejects an empty, negative, or repeated selection.
func checkSelection(kind, role string, sel types.SpectrumSelection) error {
	if len(sel) == 0 {
		return types.NewConfigError("new_reducer", "%s requires at least one %s spectrum", kind, role)
	}
	if err := sel.Validate(); err != nil {
		return types.NewConfigError("new_reducer", "%s %s: %v", kind, role, err)
	}
	return nil
}

// frameNormalizer sums a detector selection and divides by a frame counter.
type frameNormalizer struct {
	kind      string
	detectors types.SpectrumSelection
	frames    func(*types.Point) int64
	summing   summing
}

func newFrameNormalizer(kind string, detectors types.SpectrumSelection, frames func(*types.Point) int64, opts []ReducerOption) (*frameNormalizer, error) {
	if err := checkSelection(kind, "detector", detectors); err != nil {
		return nil, err
	}
	s, err := newSumming(kind, false, opts)
	if err != nil {
		return nil, err
	}
	return &frameNormalizer{kind: kind, detectors: slices.Clone(detectors), frames: frames, summing: s}, nil
}

func (r *frameNormalizer) Kind() string { return r.kind }

func (r *frameNormalizer) Request() types.SnapshotRequest {
	return types.SnapshotRequest{Spectra: r.detectors, TOF: r.summing.needsTOF()}
}

// Reduce returns N/F with uncertainty sqrt(N)/F, where N is the summed
// detector counts and F the frame count. F == 0 is an invalid point.
func (r *frameNormalizer) Reduce(point *types.Point) (types.Observable, error) {
	f := r.frames(point)
	if f <= 0 {
		return types.Observable{}, types.NewInvalidPointError("reduce", "%s: frame count is %d", r.kind, f)
	}
	n, err := sumSelection(point, r.detectors, r.summing.detector)
	if err != nil {
		return types.Observable{}, types.NewInvalidPointError("reduce", "%s: %v", r.kind, err)
	}
	frames := float64(f)
	return types.Observable{
		Value:       n / frames,
		Uncertainty: math.Sqrt(n) / frames,
		Metadata: map[string]any{
			ChannelDetCounts:       n,
			ChannelDetCountsStddev: math.Sqrt(n),
		},
	}, nil
}

func (r *frameNormalizer) Channels() []types.Descriptor {
	return []types.Descriptor{countsChannel(ChannelDetCounts), countsChannel(ChannelDetCountsStddev)}
}

// GoodFramesNormalizer sums detector spectra and normalizes by run good frames.
type GoodFramesNormalizer struct{ *frameNormalizer }

// NewGoodFramesNormalizer creates a GoodFramesNormalizer over detectors.
func NewGoodFramesNormalizer(detectors types.SpectrumSelection, opts ...ReducerOption) (*GoodFramesNormalizer, error) {
	n, err := newFrameNormalizer(KindGoodFramesNormalizer, detectors, func(p *types.Point) int64 { return p.GoodFrames }, opts)
	if err != nil {
		return nil, err
	}
	return &GoodFramesNormalizer{n}, nil
}

// PeriodGoodFramesNormalizer sums detector spectra and normalizes by the
// current period's good frames.
type PeriodGoodFramesNormalizer struct{ *frameNormalizer }

// NewPeriodGoodFramesNormalizer creates a PeriodGoodFramesNormalizer over detectors.
func NewPeriodGoodFramesNormalizer(detectors types.SpectrumSelection, opts ...ReducerOption) (*PeriodGoodFramesNormalizer, error) {
	n, err := newFrameNormalizer(KindPeriodGoodFramesNormalizer, detectors, func(p *types.Point) int64 { return p.PeriodGoodFrames }, opts)
	if err != nil {
		return nil, err
	}
	return &PeriodGoodFramesNormalizer{n}, nil
}

// MonitorNormalizer divides summed detector counts by summed monitor counts.
type MonitorNormalizer struct {
	detectors types.SpectrumSelection
	monitors  types.SpectrumSelection
	summing   summing
}

// NewMonitorNormalizer creates a MonitorNormalizer. Both selections must be
// non-empty. A spectrum may appear in both.
func NewMonitorNormalizer(detectors, monitors types.SpectrumSelection, opts ...ReducerOption) (*MonitorNormalizer, error) {
	if err := checkSelection(KindMonitorNormalizer, "detector", detectors); err != nil {
		return nil, err
	}
	if err := checkSelection(KindMonitorNormalizer, "monitor", monitors); err != nil {
		return nil, err
	}
	s, err := newSumming(KindMonitorNormalizer, true, opts)
	if err != nil {
		return nil, err
	}
	return &MonitorNormalizer{detectors: slices.Clone(detectors), monitors: slices.Clone(monitors), summing: s}, nil
}

// Kind returns "monitor_normalizer".
func (r *MonitorNormalizer) Kind() string { return KindMonitorNormalizer }

// Request asks for the union of detector and monitor spectra.
func (r *MonitorNormalizer) Request() types.SnapshotRequest {
	return types.SnapshotRequest{Spectra: r.detectors.Union(r.monitors), TOF: r.summing.needsTOF()}
}

// Reduce returns D/M. Zero monitor counts are an invalid point.
func (r *MonitorNormalizer) Reduce(point *types.Point) (types.Observable, error) {
	det, err := sumSelection(point, r.detectors, r.summing.detector)
	if err != nil {
		return types.Observable{}, types.NewInvalidPointError("reduce", "detectors: %v", err)
	}
	mon, err := sumSelection(point, r.monitors, r.summing.monitor)
	if err != nil {
		return types.Observable{}, types.NewInvalidPointError("reduce", "monitors: %v", err)
	}
	if mon == 0 {
		return types.Observable{}, types.NewInvalidPointError("reduce", "monitor counts are zero")
	}
	value, sigma := ratio(det, mon)
	return types.Observable{
		Value:       value,
		Uncertainty: sigma,
		Metadata: map[string]any{
			ChannelDetCounts:       det,
			ChannelDetCountsStddev: math.Sqrt(det),
			ChannelMonCounts:       mon,
			ChannelMonCountsStddev: math.Sqrt(mon),
		},
	}, nil
}

// Channels describes the detector and monitor count channels.
func (r *MonitorNormalizer) Channels() []types.Descriptor {
	return []types.Descriptor{
		countsChannel(ChannelDetCounts),
		countsChannel(ChannelDetCountsStddev),
		countsChannel(ChannelMonCounts),
		countsChannel(ChannelMonCountsStddev),
	}
}

// PeriodSpecIntegralsReducer integrates detector and monitor spectra of one
// period and publishes their ratio along with the per-spectrum integrals.
type PeriodSpecIntegralsReducer struct {
	detectors types.SpectrumSelection
	monitors  types.SpectrumSelection
	period    int
	summing   summing
}

// NewPeriodSpecIntegralsReducer creates the reducer. Period 0 reads the
// current period. Both selections must be non-empty.
func NewPeriodSpecIntegralsReducer(detectors, monitors types.SpectrumSelection, period int, opts ...ReducerOption) (*PeriodSpecIntegralsReducer, error) {
	if err := checkSelection(KindPeriodSpecIntegrals, "detector", detectors); err != nil {
		return nil, err
	}
	if err := checkSelection(KindPeriodSpecIntegrals, "monitor", monitors); err != nil {
		return nil, err
	}
	if period < 0 {
		return nil, types.NewConfigError("new_reducer", "period must be >= 0, got %d", period)
	}
	s, err := newSumming(KindPeriodSpecIntegrals, true, opts)
	if err != nil {
		return nil, err
	}
	return &PeriodSpecIntegralsReducer{
		detectors: slices.Clone(detectors),
		monitors:  slices.Clone(monitors),
		period:    period,
		summing:   s,
	}, nil
}

// Kind returns "period_spec_integrals".
func (r *PeriodSpecIntegralsReducer) Kind() string { return KindPeriodSpecIntegrals }

// Request asks for both selections in the configured period.
func (r *PeriodSpecIntegralsReducer) Request() types.SnapshotRequest {
	return types.SnapshotRequest{Spectra: r.detectors.Union(r.monitors), Period: r.period, TOF: r.summing.needsTOF()}
}

// Reduce returns D/M with sigma = (D/M)*sqrt(1/D + 1/M). D == 0 yields 0 +- 0;
// M == 0 is an invalid point.
func (r *PeriodSpecIntegralsReducer) Reduce(point *types.Point) (types.Observable, error) {
	detInts, err := integrateSelection(point, r.detectors, r.summing.detector)
	if err != nil {
		return types.Observable{}, types.NewInvalidPointError("reduce", "detectors: %v", err)
	}
	monInts, err := integrateSelection(point, r.monitors, r.summing.monitor)
	if err != nil {
		return types.Observable{}, types.NewInvalidPointError("reduce", "monitors: %v", err)
	}
	var det, mon float64
	for _, v := range detInts {
		det += v
	}
	for _, v := range monInts {
		mon += v
	}
	if mon == 0 {
		return types.Observable{}, types.NewInvalidPointError("reduce", "monitor integral is zero")
	}
	value, sigma := ratio(det, mon)
	return types.Observable{
		Value:       value,
		Uncertainty: sigma,
		Metadata: map[string]any{
			ChannelDetCounts:       det,
			ChannelDetCountsStddev: math.Sqrt(det),
			ChannelMonCounts:       mon,
			ChannelMonCountsStddev: math.Sqrt(mon),
			ChannelDetIntegrals:    detInts,
			ChannelMonIntegrals:    monInts,
		},
	}, nil
}

// Channels describes the count and integral channels.
func (r *PeriodSpecIntegralsReducer) Channels() []types.Descriptor {
	return []types.Descriptor{
		countsChannel(ChannelDetCounts),
		countsChannel(ChannelDetCountsStddev),
		countsChannel(ChannelMonCounts),
		countsChannel(ChannelMonCountsStddev),
		arrayChannel(ChannelDetIntegrals),
		arrayChannel(ChannelMonIntegrals),
	}
}

// DSpacingConfig configures a DSpacingMappingReducer. FlightPaths and
// TwoTheta hold one entry per detector, in selection order.
type DSpacingConfig struct {
	Detectors types.SpectrumSelection
	// FlightPaths are total flight path lengths in metres.
	FlightPaths []float64
	// TwoTheta are scattering angles in radians, in (0, pi].
	TwoTheta []float64
	// BinEdges are strictly ascending d-spacing bin edges in angstroms.
	BinEdges []float64
}

// DSpacingMappingReducer maps each detector's time-of-flight bins to
// d-spacing, rebins every detector onto common edges, and sums them.
// The observable is the total mapped counts; the summed histogram is
// published on the dspacing channel.
type DSpacingMappingReducer struct {
	cfg DSpacingConfig
}

// NewDSpacingMappingReducer validates cfg and creates the reducer.
func NewDSpacingMappingReducer(cfg DSpacingConfig) (*DSpacingMappingReducer, error) {
	if err := checkSelection(KindDSpacingMapping, "detector", cfg.Detectors); err != nil {
		return nil, err
	}
	n := len(cfg.Detectors)
	if len(cfg.FlightPaths) != n || len(cfg.TwoTheta) != n {
		return nil, types.NewConfigError("new_reducer", "%s needs one flight path and two-theta per detector, got %d detectors, %d flight paths, %d angles",
			KindDSpacingMapping, n, len(cfg.FlightPaths), len(cfg.TwoTheta))
	}
	for i := range n {
		if l := cfg.FlightPaths[i]; math.IsNaN(l) || math.IsInf(l, 0) || l <= 0 {
			return nil, types.NewConfigError("new_reducer", "flight path of spectrum %d must be > 0 m, got %v", cfg.Detectors[i], l)
		}
		if tt := cfg.TwoTheta[i]; math.IsNaN(tt) || tt <= 0 || tt > math.Pi {
			return nil, types.NewConfigError("new_reducer", "two-theta of spectrum %d must be in (0, pi], got %v", cfg.Detectors[i], tt)
		}
	}
	if len(cfg.BinEdges) < 2 {
		return nil, types.NewConfigError("new_reducer", "%s needs at least 2 d-spacing bin edges", KindDSpacingMapping)
	}
	for i := 1; i < len(cfg.BinEdges); i++ {
		if !(cfg.BinEdges[i] > cfg.BinEdges[i-1]) {
			return nil, types.NewConfigError("new_reducer", "d-spacing bin edges must be strictly ascending")
		}
	}
	return &DSpacingMappingReducer{cfg: DSpacingConfig{
		Detectors:   slices.Clone(cfg.Detectors),
		FlightPaths: slices.Clone(cfg.FlightPaths),
		TwoTheta:    slices.Clone(cfg.TwoTheta),
		BinEdges:    slices.Clone(cfg.BinEdges),
	}}, nil
}

// Kind returns "dspacing_mapping".
func (r *DSpacingMappingReducer) Kind() string { return KindDSpacingMapping }

// Request asks for the detector spectra of the current period with their bin edges.
func (r *DSpacingMappingReducer) Request() types.SnapshotRequest {
	return types.SnapshotRequest{Spectra: r.cfg.Detectors, TOF: true}
}

// Reduce returns the total counts mapped into the d-spacing range with
// Poisson uncertainty. Counts are fractional where bins were split.
func (r *DSpacingMappingReducer) Reduce(point *types.Point) (types.Observable, error) {
	mapped := make([]float64, len(r.cfg.BinEdges)-1)
	for i, spec := range r.cfg.Detectors {
		counts, ok := point.Spectra[spec]
		if !ok {
			return types.Observable{}, types.NewInvalidPointError("reduce", "spectrum %d not in snapshot", spec)
		}
		tof, ok := point.TOF[spec]
		if !ok {
			return types.Observable{}, types.NewInvalidPointError("reduce", "spectrum %d has no time-of-flight edges", spec)
		}
		dEdges := make([]float64, len(tof))
		for j, t := range tof {
			dEdges[j] = types.DSpacingFromTOF(t, r.cfg.FlightPaths[i], r.cfg.TwoTheta[i])
		}
		binned, err := types.Rebin(dEdges, counts, r.cfg.BinEdges)
		if err != nil {
			return types.Observable{}, types.NewInvalidPointError("reduce", "spectrum %d: %v", spec, err)
		}
		for k, c := range binned {
			mapped[k] += c
		}
	}
	var total float64
	for _, c := range mapped {
		total += c
	}
	return types.Observable{
		Value:       total,
		Uncertainty: math.Sqrt(total),
		Metadata: map[string]any{
			ChannelDetCounts: total,
			ChannelDSpacing:  mapped,
		},
	}, nil
}

// Channels describes the total and the d-spacing histogram.
func (r *DSpacingMappingReducer) Channels() []types.Descriptor {
	return []types.Descriptor{countsChannel(ChannelDetCounts), arrayChannel(ChannelDSpacing)}
}

// NoopReducer returns a fixed observable and reads no telemetry.
type NoopReducer struct {
	observable types.Observable
}

// NewNoopReducer creates a reducer always returning obs.
func NewNoopReducer(obs types.Observable) *NoopReducer {
	return &NoopReducer{observable: obs}
}

// Kind returns "noop".
func (r *NoopReducer) Kind() string { return KindNoop }

// Request asks for nothing.
func (r *NoopReducer) Request() types.SnapshotRequest { return types.SnapshotRequest{} }

// Reduce returns a copy of the fixed observable.
func (r *NoopReducer) Reduce(*types.Point) (types.Observable, error) {
	obs := r.observable
	obs.Metadata = maps.Clone(r.observable.Metadata)
	return obs, nil
}

// Channels describes the fixed metadata keys as numbers.
func (r *NoopReducer) Channels() []types.Descriptor {
	out := make([]types.Descriptor, 0, len(r.observable.Metadata))
	for _, k := range sortedKeys(r.observable.Metadata) {
		out = append(out, types.Descriptor{Name: k, Source: "reducer", Dtype: types.DtypeNumber})
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var (
	_ Reducer = (*GoodFramesNormalizer)(nil)
	_ Reducer = (*PeriodGoodFramesNormalizer)(nil)
	_ Reducer = (*MonitorNormalizer)(nil)
	_ Reducer = (*PeriodSpecIntegralsReducer)(nil)
	_ Reducer = (*DSpacingMappingReducer)(nil)
	_ Reducer = (*NoopReducer)(nil)
)
