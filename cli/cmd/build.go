package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/dae"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/record"
	"github.com/pithecene-io/tally/strategy"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/telemetry/redisport"
	"github.com/pithecene-io/tally/types"
)

// resolveConfig loads the config file (or the default) and applies flag
// overrides. Only flags the user set override file values.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("instrument") {
		cfg.Instrument = c.String("instrument")
	}
	if c.IsSet("telemetry") {
		cfg.Telemetry.Backend = c.String("telemetry")
	}
	if c.IsSet("redis-url") {
		cfg.Telemetry.URL = c.String("redis-url")
	}
	if c.IsSet("controller") {
		cfg.Controller.Kind = c.String("controller")
	}
	if c.IsSet("save-run") {
		cfg.Controller.SaveRun = c.Bool("save-run")
	}
	if c.IsSet("waiter") {
		cfg.Waiter.Kind = c.String("waiter")
	}
	if c.IsSet("target") {
		cfg.Waiter.Target = c.Float64("target")
	}
	if c.IsSet("duration") {
		cfg.Waiter.Duration = config.Duration{Duration: c.Duration("duration")}
	}
	if c.IsSet("reducer") {
		cfg.Reducer.Kind = c.String("reducer")
	}
	if c.IsSet("detectors") {
		cfg.Reducer.Detectors = c.IntSlice("detectors")
	}
	if c.IsSet("monitors") {
		cfg.Reducer.Monitors = c.IntSlice("monitors")
	}
	if c.IsSet("points") {
		cfg.Points = c.Int("points")
	}
	if c.IsSet("plan") {
		cfg.Plan = c.String("plan")
	}
	if c.IsSet("record-backend") {
		cfg.Recording.Backend = c.String("record-backend")
	}
	if c.IsSet("record-path") {
		cfg.Recording.Path = c.String("record-path")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// instrument is a built acquisition stack.
type instrument struct {
	port     telemetry.Port
	sim      *telemetry.Simulator
	app      *apparatus.Apparatus
	detector *dae.Dae
}

// Close releases the telemetry port.
func (in *instrument) Close() error {
	if closer, ok := in.port.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// runSimulator advances simulated frames until ctx is done. No-op for a
// real apparatus.
func (in *instrument) runSimulator(ctx context.Context, cfg config.SimulatorConfig) {
	if in.sim == nil {
		return
	}
	interval := cfg.FrameInterval.Duration
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	perTick := cfg.FramesPerTick
	if perTick <= 0 {
		perTick = 10
	}
	go func() { _ = in.sim.Run(ctx, interval, perTick) }()
}

// buildInstrument wires the telemetry port, strategies, and detector.
func buildInstrument(cfg *config.Config, logger *log.Logger, collector *metrics.Collector) (*instrument, error) {
	in := &instrument{}
	switch cfg.Telemetry.Backend {
	case config.TelemetryRedis:
		port, err := redisport.New(redisport.Config{
			URL:     cfg.Telemetry.URL,
			Prefix:  cfg.Telemetry.Prefix,
			Timeout: cfg.Telemetry.Timeout.Duration,
			Retries: cfg.Telemetry.Retries,
		})
		if err != nil {
			return nil, types.NewConfigError("telemetry", "%v", err)
		}
		in.port = port
	default:
		port := telemetry.NewMemoryPort()
		sc := cfg.Telemetry.Sim
		in.sim = telemetry.NewSimulator(port, telemetry.SimulatorConfig{
			NumSpectra:      sc.NumSpectra,
			NumTimeChannels: sc.NumTimeChannels,
			NumPeriods:      sc.NumPeriods,
			RunNumber:       sc.RunNumber,
			Rates:           sc.Rates,
			MonitorSpectrum: sc.MonitorSpectrum,
			UAHPerFrame:     sc.UAHPerFrame,
			EventsPerFrame:  sc.EventsPerFrame,
		})
		in.port = port
	}
	in.app = apparatus.New(in.port)

	controller, err := buildController(cfg.Controller, logger, collector)
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}
	waiter, err := buildWaiter(cfg.Waiter, logger, collector)
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}
	reducer, err := buildReducer(cfg.Reducer)
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}
	if err := strategy.CheckStrategies(controller, waiter, reducer); err != nil {
		return nil, errors.Join(err, in.Close())
	}

	in.detector, err = dae.New(dae.Config{
		Name:       cfg.Instrument,
		Apparatus:  in.app,
		Controller: controller,
		Waiter:     waiter,
		Reducer:    reducer,
		Logger:     logger,
		Collector:  collector,
	})
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}
	return in, nil
}

func buildController(cc config.ControllerConfig, logger *log.Logger, collector *metrics.Collector) (strategy.Controller, error) {
	cfg := strategy.ControllerConfig{
		SaveRun:      cc.SaveRun,
		StateTimeout: cc.StateTimeout.Duration,
		Logger:       logger.Named("controller"),
		Metrics:      collector,
	}
	switch cc.Kind {
	case strategy.KindRunPerPoint:
		return strategy.NewRunPerPoint(cfg)
	case strategy.KindRunPerScan:
		return strategy.NewRunPerScan(cfg)
	case strategy.KindPeriodPerPoint:
		return strategy.NewPeriodPerPoint(cfg)
	default:
		return nil, types.NewConfigError("controller", "unknown controller %q", cc.Kind)
	}
}

func buildWaiter(wc config.WaiterConfig, logger *log.Logger, collector *metrics.Collector) (strategy.Waiter, error) {
	if wc.Kind == config.WaiterTime {
		return strategy.NewTimeWaiter(wc.Duration.Duration)
	}
	return strategy.NewCounterWaiter(strategy.Counter(wc.Kind), wc.Target, strategy.CounterWaiterConfig{
		PollInterval:  wc.PollInterval.Duration,
		Timeout:       wc.Timeout.Duration,
		DecreaseGrace: wc.DecreaseGrace.Duration,
		Logger:        logger.Named("waiter"),
		Metrics:       collector,
	})
}

func buildReducer(rc config.ReducerConfig) (strategy.Reducer, error) {
	detectors, err := types.NewSpectrumSelection(rc.Detectors...)
	if err != nil {
		return nil, types.NewConfigError("reducer", "detectors: %v", err)
	}
	monitors, err := types.NewSpectrumSelection(rc.Monitors...)
	if err != nil {
		return nil, types.NewConfigError("reducer", "monitors: %v", err)
	}

	var opts []strategy.ReducerOption
	if rc.DetectorWindow != nil {
		w, err := buildWindow(rc.DetectorWindow)
		if err != nil {
			return nil, types.NewConfigError("reducer", "detector window: %v", err)
		}
		opts = append(opts, strategy.WithDetectorTOF(w))
	}
	if rc.MonitorWindow != nil {
		w, err := buildWindow(rc.MonitorWindow)
		if err != nil {
			return nil, types.NewConfigError("reducer", "monitor window: %v", err)
		}
		opts = append(opts, strategy.WithMonitorTOF(w))
	}

	switch rc.Kind {
	case strategy.KindGoodFramesNormalizer:
		return strategy.NewGoodFramesNormalizer(detectors, opts...)
	case strategy.KindPeriodGoodFramesNormalizer:
		return strategy.NewPeriodGoodFramesNormalizer(detectors, opts...)
	case strategy.KindMonitorNormalizer:
		return strategy.NewMonitorNormalizer(detectors, monitors, opts...)
	case strategy.KindPeriodSpecIntegrals:
		return strategy.NewPeriodSpecIntegralsReducer(detectors, monitors, rc.Period, opts...)
	case strategy.KindDSpacingMapping:
		twoTheta := make([]float64, len(rc.DSpacing.TwoTheta))
		for i, deg := range rc.DSpacing.TwoTheta {
			twoTheta[i] = deg * math.Pi / 180
		}
		return strategy.NewDSpacingMappingReducer(strategy.DSpacingConfig{
			Detectors:   detectors,
			FlightPaths: rc.DSpacing.FlightPaths,
			TwoTheta:    twoTheta,
			BinEdges:    rc.DSpacing.BinEdges,
		})
	default:
		return nil, types.NewConfigError("reducer", "unknown reducer %q", rc.Kind)
	}
}

// buildWindow resolves a configured window to time-of-flight bounds.
func buildWindow(wc *config.WindowConfig) (types.TOFWindow, error) {
	if len(wc.Wavelength) > 0 {
		if len(wc.Wavelength) != 2 {
			return types.TOFWindow{}, fmt.Errorf("wavelength must be [lower, upper]")
		}
		return types.WavelengthWindow(wc.Wavelength[0], wc.Wavelength[1], wc.FlightPath)
	}
	if len(wc.TOF) != 2 {
		return types.TOFWindow{}, fmt.Errorf("tof must be [lower, upper]")
	}
	return types.TOFWindow{Lo: wc.TOF[0], Hi: wc.TOF[1]}, nil
}

// buildRecorder returns nil when recording is disabled.
func buildRecorder(ctx context.Context, cfg *config.Config, scanID string, start time.Time, collector *metrics.Collector) (record.Recorder, error) {
	rc := cfg.Recording
	if rc.Backend == "" {
		return nil, nil
	}
	dataset := rc.Dataset
	if dataset == "" {
		dataset = record.DefaultDataset
	}
	partition := record.Config{
		Dataset:    dataset,
		Instrument: cfg.Instrument,
		Day:        record.DeriveDay(start),
		ScanID:     scanID,
	}

	var (
		rec *record.LodeRecorder
		err error
	)
	switch rc.Backend {
	case config.RecordingS3:
		bucket, prefix := record.ParseS3Path(rc.Path)
		rec, err = record.NewLodeS3Recorder(ctx, partition, record.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       rc.Region,
			Endpoint:     rc.Endpoint,
			UsePathStyle: rc.S3PathStyle,
		})
	default:
		rec, err = record.NewLodeRecorder(partition, rc.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	return record.NewInstrumentedRecorder(rec, collector), nil
}
