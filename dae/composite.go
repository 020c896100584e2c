package dae

import (
	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/strategy"
	"github.com/pithecene-io/tally/types"
)

// MonitorNormalisingConfig configures NewMonitorNormalising.
type MonitorNormalisingConfig struct {
	Apparatus *apparatus.Apparatus
	// Detectors are the detector spectra summed into the numerator.
	Detectors types.SpectrumSelection
	// Monitor is the monitor spectrum.
	Monitor int
	// Summing bounds the detector and monitor sums to time-of-flight windows.
	Summing []strategy.ReducerOption
	// Frames is the good frames to count per point.
	Frames int64
	// Periods counts each point into its own hardware period of one run
	// instead of one run per point.
	Periods bool
	// SaveRun saves runs instead of aborting them.
	SaveRun   bool
	Logger    *log.Logger
	Collector *metrics.Collector
}

// NewMonitorNormalising builds the common monitor-normalised detector: with
// periods, PeriodPerPoint plus a period good frames waiter; otherwise
// RunPerPoint plus a good frames waiter. Both reduce with MonitorNormalizer.
func NewMonitorNormalising(cfg MonitorNormalisingConfig) (*Dae, error) {
	if cfg.Monitor < 0 {
		return nil, types.NewConfigError("new_dae", "monitor spectrum must be >= 0, got %d", cfg.Monitor)
	}
	reducer, err := strategy.NewMonitorNormalizer(cfg.Detectors, types.SpectrumSelection{cfg.Monitor}, cfg.Summing...)
	if err != nil {
		return nil, err
	}

	ctrlCfg := strategy.ControllerConfig{
		SaveRun: cfg.SaveRun,
		Logger:  cfg.Logger.Named("controller"),
		Metrics: cfg.Collector,
	}
	waitCfg := strategy.CounterWaiterConfig{
		Logger:  cfg.Logger.Named("waiter"),
		Metrics: cfg.Collector,
	}

	var (
		controller strategy.Controller
		waiter     strategy.Waiter
	)
	if cfg.Periods {
		controller, err = strategy.NewPeriodPerPoint(ctrlCfg)
		if err != nil {
			return nil, err
		}
		waiter, err = strategy.NewPeriodGoodFramesWaiter(cfg.Frames, waitCfg)
	} else {
		controller, err = strategy.NewRunPerPoint(ctrlCfg)
		if err != nil {
			return nil, err
		}
		waiter, err = strategy.NewGoodFramesWaiter(cfg.Frames, waitCfg)
	}
	if err != nil {
		return nil, err
	}

	return New(Config{
		Apparatus:  cfg.Apparatus,
		Controller: controller,
		Waiter:     waiter,
		Reducer:    reducer,
		Logger:     cfg.Logger,
		Collector:  cfg.Collector,
	})
}
