package apparatus

import (
	"context"

	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

// Signal is a named, readable apparatus signal published alongside a point.
type Signal struct {
	app  *Apparatus
	desc types.Descriptor
	path string
}

// Signal returns a readable for the signal at path, published as name.
func (a *Apparatus) Signal(name, path string, dtype types.Dtype, units string) *Signal {
	return &Signal{
		app:  a,
		path: path,
		desc: types.Descriptor{
			Name:   name,
			Source: path,
			Dtype:  dtype,
			Units:  units,
		},
	}
}

// Name returns the published channel name.
func (s *Signal) Name() string { return s.desc.Name }

// Path returns the telemetry path.
func (s *Signal) Path() string { return s.path }

// Describe returns the channel descriptor.
func (s *Signal) Describe() types.Descriptor { return s.desc }

// Read reads the current value.
func (s *Signal) Read(ctx context.Context) (types.Reading, error) {
	v, err := s.app.port.Read(ctx, s.path)
	if err != nil {
		return types.Reading{}, err
	}
	return types.Reading{Value: v, Timestamp: s.app.clock.Now()}, nil
}

// Common published signals.

// GoodFramesSignal publishes the run good frame counter.
func (a *Apparatus) GoodFramesSignal() *Signal {
	return a.Signal("good_frames", telemetry.PathGoodFrames, types.DtypeInteger, "frames")
}

// PeriodGoodFramesSignal publishes the period good frame counter.
func (a *Apparatus) PeriodGoodFramesSignal() *Signal {
	return a.Signal("period_good_frames", telemetry.PathPeriodGoodFrames, types.DtypeInteger, "frames")
}

// GoodUAHSignal publishes the good proton charge.
func (a *Apparatus) GoodUAHSignal() *Signal {
	return a.Signal("good_uah", telemetry.PathGoodUAH, types.DtypeNumber, "uAh")
}

// MEventsSignal publishes the neutron event count in millions.
func (a *Apparatus) MEventsSignal() *Signal {
	return a.Signal("m_events", telemetry.PathMEvents, types.DtypeNumber, "Mevents")
}

// RunNumberSignal publishes the current run number.
func (a *Apparatus) RunNumberSignal() *Signal {
	return a.Signal("run_number", telemetry.PathRunNumber, types.DtypeInteger, "")
}

// PeriodSignal publishes the current hardware period.
func (a *Apparatus) PeriodSignal() *Signal {
	return a.Signal("period_num", telemetry.PathPeriod, types.DtypeInteger, "")
}

// CountRateSignal publishes the count rate.
func (a *Apparatus) CountRateSignal() *Signal {
	return a.Signal("count_rate", telemetry.PathCountRate, types.DtypeNumber, "counts/s")
}

// MonitorCountsSignal publishes the integrated monitor counts.
func (a *Apparatus) MonitorCountsSignal() *Signal {
	return a.Signal("monitor_counts", telemetry.PathMonitorCounts, types.DtypeInteger, "counts")
}

// MonitorSpectrumSignal publishes the monitor spectrum number.
func (a *Apparatus) MonitorSpectrumSignal() *Signal {
	return a.Signal("monitor_spectrum", telemetry.PathMonitorSpectrum, types.DtypeInteger, "")
}

// EventModeFractionSignal publishes the fraction of data taken in event mode.
func (a *Apparatus) EventModeFractionSignal() *Signal {
	return a.Signal("event_mode_fraction", telemetry.PathEventModeFraction, types.DtypeNumber, "")
}
