package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/tally/strategy"
)

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct. The result is not validated; callers
// apply flag overrides first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given: a simulated
// instrument counting one run per point, normalised to the monitor.
func Default() *Config {
	return &Config{
		Instrument: "sim",
		Points:     1,
		Telemetry: TelemetryConfig{
			Backend: TelemetrySim,
			Sim: SimulatorConfig{
				NumSpectra:      8,
				NumTimeChannels: 10,
				NumPeriods:      1,
				Rates:           map[int]float64{1: 5, 2: 20},
				MonitorSpectrum: 1,
				UAHPerFrame:     0.01,
				EventsPerFrame:  0.001,
				FrameInterval:   Duration{10 * time.Millisecond},
				FramesPerTick:   10,
			},
		},
		Controller: ControllerConfig{Kind: strategy.KindRunPerPoint},
		Waiter:     WaiterConfig{Kind: string(strategy.CounterGoodFrames), Target: 100},
		Reducer:    ReducerConfig{Kind: strategy.KindMonitorNormalizer, Detectors: []int{2}, Monitors: []int{1}},
	}
}
