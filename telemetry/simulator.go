package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/tally/clock"
	"github.com/pithecene-io/tally/types"
)

// BEGINRUNEX option bits.
const (
	BeginRunExPaused  int64 = 1
	BeginRunExDelayed int64 = 2
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// NumSpectra is the highest addressable spectrum number. Spectrum 0 is the junk spectrum.
	NumSpectra int
	// NumTimeChannels is the length of each spectrum counts array.
	NumTimeChannels int
	// NumPeriods is the number of hardware periods. Defaults to 1.
	NumPeriods int
	// RunNumber is the next run number. Defaults to 1.
	RunNumber int64
	// Rates maps spectrum number to counts per good frame, spread evenly over time channels.
	Rates map[int]float64
	// MonitorSpectrum is the spectrum reported on MONITORSPECTRUM.
	MonitorSpectrum int
	// UAHPerFrame is the good proton charge accrued per frame.
	UAHPerFrame float64
	// EventsPerFrame is the neutron event count accrued per frame.
	EventsPerFrame float64
	// TOFStart is the first time-of-flight bin edge in microseconds.
	TOFStart float64
	// TOFBinWidth is the width of every time channel in microseconds. Defaults to 100.
	TOFBinWidth float64
	// Clock drives Run. Defaults to the wall clock.
	Clock clock.Clock
}

// Simulator models a DAE on a MemoryPort: it accepts run controls in the
// states the real apparatus accepts them, rejects the rest, and accumulates
// frames, charge, events, and spectra while counting.
type Simulator struct {
	port *MemoryPort
	cfg  SimulatorConfig

	mu          sync.Mutex
	state       types.RunState
	runNumber   int64
	period      int
	goodFrames  int64
	rawFrames   int64
	goodUAH     float64
	mevents     float64
	periodGood  map[int]int64
	periodRaw   map[int]int64
	periodUAH   map[int]float64
	spectra     map[int]map[int][]float64 // period -> spectrum -> counts
	beginCount  int
	endCount    int
	abortCount  int
	rejectBegin  error
	rejectPeriod error
}

// NewSimulator installs a simulated apparatus on port.
func NewSimulator(port *MemoryPort, cfg SimulatorConfig) *Simulator {
	if cfg.NumPeriods <= 0 {
		cfg.NumPeriods = 1
	}
	if cfg.NumTimeChannels <= 0 {
		cfg.NumTimeChannels = 1
	}
	if cfg.RunNumber <= 0 {
		cfg.RunNumber = 1
	}
	if cfg.TOFBinWidth <= 0 {
		cfg.TOFBinWidth = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	s := &Simulator{
		port:      port,
		cfg:       cfg,
		state:     types.RunStateIdle,
		runNumber: cfg.RunNumber,
		period:    1,
	}
	s.resetLocked()

	port.HandleTrigger(PathBeginRun, s.onBeginRun)
	port.HandleTrigger(PathEndRun, s.onEndRun)
	port.HandleTrigger(PathAbortRun, s.onAbortRun)
	port.HandleTrigger(PathPauseRun, s.onPauseRun)
	port.HandleTrigger(PathResumeRun, s.onResumeRun)
	port.HandleWrite(PathBeginRunEx, s.onBeginRunEx)
	port.HandleWrite(PathPeriodSetpoint, s.onPeriodSetpoint)
	port.HandleWrite(PathNumPeriods, s.onNumPeriods)

	s.mu.Lock()
	s.publishEdgesLocked()
	s.publishLocked()
	s.mu.Unlock()
	return s
}

// RejectBegin makes subsequent begin commands fail with err. Nil restores acceptance.
func (s *Simulator) RejectBegin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectBegin = err
}

// RejectPeriod makes subsequent period changes fail with err. Nil restores acceptance.
func (s *Simulator) RejectPeriod(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectPeriod = err
}

// State returns the simulated run state.
func (s *Simulator) State() types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counts returns how many runs were begun, ended, and aborted.
func (s *Simulator) Counts() (begun, ended, aborted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginCount, s.endCount, s.abortCount
}

// Advance accrues frames while counting. It is a no-op otherwise.
func (s *Simulator) Advance(frames int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsCounting() || frames <= 0 {
		return
	}
	f := float64(frames)
	s.goodFrames += frames
	s.rawFrames += frames
	s.goodUAH += f * s.cfg.UAHPerFrame
	s.mevents += f * s.cfg.EventsPerFrame / 1e6
	s.periodGood[s.period] += frames
	s.periodRaw[s.period] += frames
	s.periodUAH[s.period] += f * s.cfg.UAHPerFrame
	for spec, rate := range s.cfg.Rates {
		counts, ok := s.spectra[s.period][spec]
		if !ok {
			continue
		}
		perChannel := rate * f / float64(len(counts))
		for i := range counts {
			counts[i] += perChannel
		}
	}
	s.publishLocked()
}

// Run advances framesPerTick every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration, framesPerTick int64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cfg.Clock.After(interval):
			s.Advance(framesPerTick)
		}
	}
}

func (s *Simulator) onBeginRun(context.Context) error {
	return s.begin(types.RunStateRunning)
}

func (s *Simulator) onBeginRunEx(_ context.Context, value any) error {
	flags, err := AsInt64(value)
	if err != nil {
		return fmt.Errorf("%w: begin options: %v", ErrRejected, err)
	}
	if flags&BeginRunExPaused != 0 {
		return s.begin(types.RunStatePaused)
	}
	return s.begin(types.RunStateRunning)
}

func (s *Simulator) begin(to types.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectBegin != nil {
		return s.rejectBegin
	}
	if !s.state.IsIdle() {
		return fmt.Errorf("%w: cannot begin in state %s", ErrRejected, s.state)
	}
	s.resetLocked()
	s.period = 1
	s.state = to
	s.beginCount++
	s.publishLocked()
	return nil
}

func (s *Simulator) onEndRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsOpen() {
		return fmt.Errorf("%w: cannot end in state %s", ErrRejected, s.state)
	}
	s.state = types.RunStateIdle
	s.runNumber++
	s.endCount++
	s.publishLocked()
	return nil
}

func (s *Simulator) onAbortRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsOpen() {
		return fmt.Errorf("%w: cannot abort in state %s", ErrRejected, s.state)
	}
	s.state = types.RunStateIdle
	s.abortCount++
	s.publishLocked()
	return nil
}

func (s *Simulator) onPauseRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsCounting() {
		return fmt.Errorf("%w: cannot pause in state %s", ErrRejected, s.state)
	}
	s.state = types.RunStatePaused
	s.publishLocked()
	return nil
}

func (s *Simulator) onResumeRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.RunStatePaused {
		return fmt.Errorf("%w: cannot resume in state %s", ErrRejected, s.state)
	}
	s.state = types.RunStateRunning
	s.publishLocked()
	return nil
}

func (s *Simulator) onPeriodSetpoint(_ context.Context, value any) error {
	p, err := AsInt64(value)
	if err != nil {
		return fmt.Errorf("%w: period: %v", ErrRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectPeriod != nil {
		return s.rejectPeriod
	}
	if p < 1 || int(p) > s.cfg.NumPeriods {
		return fmt.Errorf("%w: period %d outside 1..%d", ErrRejected, p, s.cfg.NumPeriods)
	}
	s.period = int(p)
	s.publishLocked()
	return nil
}

func (s *Simulator) onNumPeriods(_ context.Context, value any) error {
	n, err := AsInt64(value)
	if err != nil {
		return fmt.Errorf("%w: number of periods: %v", ErrRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsIdle() {
		return fmt.Errorf("%w: cannot change periods in state %s", ErrRejected, s.state)
	}
	if n < 1 {
		return fmt.Errorf("%w: number of periods must be >= 1", ErrRejected)
	}
	s.cfg.NumPeriods = int(n)
	s.resetLocked()
	s.publishEdgesLocked()
	s.publishLocked()
	return nil
}

// resetLocked zeroes all run accumulators. Callers hold s.mu.
func (s *Simulator) resetLocked() {
	s.goodFrames, s.rawFrames = 0, 0
	s.goodUAH, s.mevents = 0, 0
	s.periodGood = make(map[int]int64)
	s.periodRaw = make(map[int]int64)
	s.periodUAH = make(map[int]float64)
	s.spectra = make(map[int]map[int][]float64, s.cfg.NumPeriods)
	for p := 1; p <= s.cfg.NumPeriods; p++ {
		specs := make(map[int][]float64, s.cfg.NumSpectra+1)
		for spec := 0; spec <= s.cfg.NumSpectra; spec++ {
			specs[spec] = make([]float64, s.cfg.NumTimeChannels)
		}
		s.spectra[p] = specs
	}
}

// publishEdgesLocked writes the time-of-flight bin edges, shared by every
// spectrum and period. Callers hold s.mu.
func (s *Simulator) publishEdgesLocked() {
	edges := make([]float64, s.cfg.NumTimeChannels+1)
	for i := range edges {
		edges[i] = s.cfg.TOFStart + float64(i)*s.cfg.TOFBinWidth
	}
	for period := 0; period <= s.cfg.NumPeriods; period++ {
		for spec := 0; spec <= s.cfg.NumSpectra; spec++ {
			s.port.MustSet(SpectrumTOFPath(period, spec), edges)
		}
	}
}

// publishLocked writes every simulated signal to the port. Callers hold s.mu.
func (s *Simulator) publishLocked() {
	p := s.port
	p.MustSet(PathRunNumber, s.runNumber)
	p.MustSet(PathGoodFrames, s.goodFrames)
	p.MustSet(PathRawFrames, s.rawFrames)
	p.MustSet(PathGoodUAH, s.goodUAH)
	p.MustSet(PathMEvents, s.mevents)
	p.MustSet(PathNumSpectra, int64(s.cfg.NumSpectra))
	p.MustSet(PathNumTimeChannels, int64(s.cfg.NumTimeChannels))
	p.MustSet(PathNumPeriods, int64(s.cfg.NumPeriods))
	p.MustSet(PathPeriod, int64(s.period))
	p.MustSet(PathPeriodGoodFrames, s.periodGood[s.period])
	p.MustSet(PathPeriodRawFrames, s.periodRaw[s.period])
	p.MustSet(PathPeriodGoodUAH, s.periodUAH[s.period])
	p.MustSet(PathMonitorSpectrum, int64(s.cfg.MonitorSpectrum))

	var total, monitor float64
	for period, specs := range s.spectra {
		for spec, counts := range specs {
			p.MustSet(SpectrumCountsPath(period, spec), counts)
			if period != s.period {
				continue
			}
			p.MustSet(SpectrumCountsPath(0, spec), counts)
			var sum float64
			for _, c := range counts {
				sum += c
			}
			total += sum
			if spec == s.cfg.MonitorSpectrum {
				monitor = sum
			}
		}
	}
	p.MustSet(PathMonitorCounts, int64(monitor))
	p.MustSet(PathTotalCounts, int64(total))
	// RUNSTATE last so state watchers observe consistent counters.
	p.MustSet(PathRunState, string(s.state))
}
