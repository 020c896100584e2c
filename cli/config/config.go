package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/tally/strategy"
)

// Telemetry backends.
const (
	TelemetrySim   = "sim"
	TelemetryRedis = "redis"
)

// Recording backends. An empty backend disables recording.
const (
	RecordingFS = "fs"
	RecordingS3 = "s3"
)

// WaiterTime is the waiter kind that counts for a fixed duration.
const WaiterTime = "time"

var (
	controllerKinds = []string{strategy.KindRunPerPoint, strategy.KindRunPerScan, strategy.KindPeriodPerPoint}
	waiterKinds     = []string{
		string(strategy.CounterGoodFrames), string(strategy.CounterPeriodGoodFrames),
		string(strategy.CounterGoodUAH), string(strategy.CounterMEvents), WaiterTime,
	}
	reducerKinds = []string{
		strategy.KindGoodFramesNormalizer, strategy.KindPeriodGoodFramesNormalizer,
		strategy.KindMonitorNormalizer, strategy.KindPeriodSpecIntegrals,
		strategy.KindDSpacingMapping,
	}
)

// Config represents a tally.yaml configuration file.
// CLI flags always override config values.
type Config struct {
	Instrument  string           `yaml:"instrument"`
	Plan        string           `yaml:"plan"`
	Points      int              `yaml:"points"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Controller  ControllerConfig `yaml:"controller"`
	Waiter      WaiterConfig     `yaml:"waiter"`
	Reducer     ReducerConfig    `yaml:"reducer"`
	Recording   RecordingConfig  `yaml:"recording"`
	MetricsAddr string           `yaml:"metrics_addr"`
}

// TelemetryConfig selects and configures the telemetry port.
type TelemetryConfig struct {
	Backend string          `yaml:"backend"`
	URL     string          `yaml:"url"`
	Prefix  string          `yaml:"prefix"`
	Timeout Duration        `yaml:"timeout"`
	Retries *int            `yaml:"retries,omitempty"`
	Sim     SimulatorConfig `yaml:"sim"`
}

// SimulatorConfig configures the in-process simulated apparatus.
type SimulatorConfig struct {
	NumSpectra      int             `yaml:"num_spectra"`
	NumTimeChannels int             `yaml:"num_time_channels"`
	NumPeriods      int             `yaml:"num_periods"`
	RunNumber       int64           `yaml:"run_number"`
	Rates           map[int]float64 `yaml:"rates"`
	MonitorSpectrum int             `yaml:"monitor_spectrum"`
	UAHPerFrame     float64         `yaml:"uah_per_frame"`
	EventsPerFrame  float64         `yaml:"events_per_frame"`
	// FrameInterval is the wall time between simulated frame batches.
	FrameInterval Duration `yaml:"frame_interval"`
	FramesPerTick int64    `yaml:"frames_per_tick"`
}

// ControllerConfig selects the run controller.
type ControllerConfig struct {
	Kind         string   `yaml:"kind"`
	SaveRun      bool     `yaml:"save_run"`
	StateTimeout Duration `yaml:"state_timeout"`
}

// WaiterConfig selects the waiter.
type WaiterConfig struct {
	Kind string `yaml:"kind"`
	// Target is the counter advance to wait for (counter waiters).
	Target float64 `yaml:"target"`
	// Duration is the counting time (time waiter).
	Duration      Duration `yaml:"duration"`
	PollInterval  Duration `yaml:"poll_interval"`
	Timeout       Duration `yaml:"timeout"`
	DecreaseGrace Duration `yaml:"decrease_grace"`
}

// ReducerConfig selects the reducer.
type ReducerConfig struct {
	Kind      string `yaml:"kind"`
	Detectors []int  `yaml:"detectors"`
	Monitors  []int  `yaml:"monitors"`
	Period    int    `yaml:"period"`

	// DetectorWindow and MonitorWindow bound the normalizing sums.
	// Unset sums every time channel.
	DetectorWindow *WindowConfig  `yaml:"detector_window,omitempty"`
	MonitorWindow  *WindowConfig  `yaml:"monitor_window,omitempty"`
	DSpacing       DSpacingConfig `yaml:"dspacing"`
}

// WindowConfig bounds a spectrum sum by time of flight in microseconds, or
// by wavelength in angstroms over FlightPath metres. Exactly one is set.
type WindowConfig struct {
	TOF        []float64 `yaml:"tof"`
	Wavelength []float64 `yaml:"wavelength"`
	FlightPath float64   `yaml:"flight_path"`
}

// DSpacingConfig holds the detector geometry of the dspacing_mapping
// reducer, one entry per detector.
type DSpacingConfig struct {
	FlightPaths []float64 `yaml:"flight_paths"`
	// TwoTheta is in degrees.
	TwoTheta []float64 `yaml:"two_theta"`
	BinEdges []float64 `yaml:"bin_edges"`
}

func (w *WindowConfig) check(field string) error {
	switch {
	case w == nil:
		return nil
	case len(w.TOF) > 0 && len(w.Wavelength) > 0:
		return fmt.Errorf("%s sets both tof and wavelength", field)
	case len(w.TOF) == 0 && len(w.Wavelength) == 0:
		return fmt.Errorf("%s needs tof or wavelength bounds", field)
	case len(w.TOF) > 0 && len(w.TOF) != 2:
		return fmt.Errorf("%s.tof must be [lower, upper], got %d values", field, len(w.TOF))
	case len(w.Wavelength) > 0 && len(w.Wavelength) != 2:
		return fmt.Errorf("%s.wavelength must be [lower, upper], got %d values", field, len(w.Wavelength))
	case len(w.Wavelength) > 0 && w.FlightPath <= 0:
		return fmt.Errorf("%s.flight_path must be > 0 for a wavelength window", field)
	}
	return nil
}

// RecordingConfig holds point recording settings.
type RecordingConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Validate checks the resolved configuration. Strategy names are checked
// here so a typo fails before any apparatus is touched.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Instrument == "" {
		add("instrument is required")
	}
	if c.Points <= 0 {
		add("points must be > 0, got %d", c.Points)
	}

	switch c.Telemetry.Backend {
	case TelemetrySim:
	case TelemetryRedis:
		if c.Telemetry.URL == "" {
			add("telemetry.url is required for the redis backend")
		}
	default:
		add("telemetry.backend must be %q or %q, got %q", TelemetrySim, TelemetryRedis, c.Telemetry.Backend)
	}

	if !slices.Contains(controllerKinds, c.Controller.Kind) {
		add("unknown controller %q (want one of %v)", c.Controller.Kind, controllerKinds)
	}

	switch {
	case !slices.Contains(waiterKinds, c.Waiter.Kind):
		add("unknown waiter %q (want one of %v)", c.Waiter.Kind, waiterKinds)
	case c.Waiter.Kind == WaiterTime && c.Waiter.Duration.Duration <= 0:
		add("waiter.duration must be > 0 for the time waiter")
	case c.Waiter.Kind != WaiterTime && c.Waiter.Target <= 0:
		add("waiter.target must be > 0, got %v", c.Waiter.Target)
	}

	switch {
	case !slices.Contains(reducerKinds, c.Reducer.Kind):
		add("unknown reducer %q (want one of %v)", c.Reducer.Kind, reducerKinds)
	case len(c.Reducer.Detectors) == 0:
		add("reducer.detectors must not be empty")
	case (c.Reducer.Kind == strategy.KindMonitorNormalizer || c.Reducer.Kind == strategy.KindPeriodSpecIntegrals) &&
		len(c.Reducer.Monitors) == 0:
		add("reducer.monitors must not be empty for %s", c.Reducer.Kind)
	case c.Reducer.Kind == strategy.KindDSpacingMapping &&
		(len(c.Reducer.DSpacing.FlightPaths) != len(c.Reducer.Detectors) || len(c.Reducer.DSpacing.TwoTheta) != len(c.Reducer.Detectors)):
		add("reducer.dspacing needs one flight_paths and two_theta entry per detector")
	}
	if err := c.Reducer.DetectorWindow.check("reducer.detector_window"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Reducer.MonitorWindow.check("reducer.monitor_window"); err != nil {
		errs = append(errs, err)
	}

	switch c.Recording.Backend {
	case "":
	case RecordingFS, RecordingS3:
		if c.Recording.Path == "" {
			add("recording.path is required for the %s backend", c.Recording.Backend)
		}
	default:
		add("recording.backend must be %q, %q, or empty, got %q", RecordingFS, RecordingS3, c.Recording.Backend)
	}

	return errors.Join(errs...)
}
