package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/render"
	"github.com/pithecene-io/tally/iox"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/scan"
	"github.com/pithecene-io/tally/types"
)

// Exit codes for `scan`.
const (
	exitSuccess  = 0
	exitFailed   = 1 // a point failed (lifecycle, timeout, invalid point)
	exitConfig   = 2 // invalid configuration or strategy composition
	exitCanceled = 3 // interrupted
)

// ScanCommand returns the scan command, the only command that drives the apparatus.
func ScanCommand() *cli.Command {
	flags := append(strategyFlags(),
		FormatFlag,
		&cli.IntFlag{Name: "points", Aliases: []string{"n"}, Usage: "Number of points to acquire"},
		&cli.StringFlag{Name: "plan", Usage: "Plan label recorded with the scan"},
		&cli.StringFlag{Name: "scan-id", Usage: "Scan ID (default: random UUID)"},
		&cli.StringFlag{Name: "record-backend", Usage: "Record points to: fs or s3 (default: off)"},
		&cli.StringFlag{Name: "record-path", Usage: "Record path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address during the scan"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress result output"},
	)
	return &cli.Command{
		Name:   "scan",
		Usage:  "Acquire a scan of points",
		Flags:  flags,
		Action: scanAction,
	}
}

func scanAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	scanID := c.String("scan-id")
	if scanID == "" {
		scanID = uuid.NewString()
	}
	logger := log.NewLogger(log.ScanContext{ScanID: scanID, Instrument: cfg.Instrument, Plan: cfg.Plan})
	defer iox.DiscardErr(logger.Sync)

	collector := metrics.NewCollector(metrics.Dimensions{
		Instrument: cfg.Instrument,
		Controller: cfg.Controller.Kind,
		Waiter:     cfg.Waiter.Kind,
		Reducer:    cfg.Reducer.Kind,
		ScanID:     scanID,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := buildInstrument(cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitCodeFor(err))
	}
	defer iox.DiscardClose(in)
	in.runSimulator(ctx, cfg.Telemetry.Sim)

	startTime := time.Now()
	rec, err := buildRecorder(ctx, cfg, scanID, startTime, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
		defer shutdown()
	}

	scanCfg := scan.Config{
		ScanID:     scanID,
		Instrument: cfg.Instrument,
		Plan:       cfg.Plan,
		Points:     cfg.Points,
		Detector:   in.detector,
		Recorder:   rec,
		Logger:     logger,
	}
	runner, err := scan.NewRunner(scanCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	result := runner.Execute(ctx)

	if !c.Bool("quiet") {
		if err := r.Render(resultView(r, result, in.detector.Channels())); err != nil {
			return err
		}
	}

	if result.Outcome.Status == scan.StatusSuccess {
		return nil
	}
	return cli.Exit(result.Outcome.Message, outcomeToExitCode(result.Outcome))
}

// resultView shapes a scan result for the renderer: a point table for table
// output, the full result otherwise.
func resultView(r *render.Renderer, result *scan.Result, channels []string) any {
	if r.Format() != render.FormatTable {
		return result
	}
	table := render.Table{Columns: append([]string{"point"}, channels...)}
	for _, p := range result.Points {
		row := []string{fmt.Sprint(p.Index)}
		for _, ch := range channels {
			row = append(row, formatReading(p.Readings[ch].Value))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func formatReading(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.6g", x)
	case []float64:
		return fmt.Sprintf("[%d values]", len(x))
	default:
		return fmt.Sprint(x)
	}
}

// outcomeToExitCode maps a scan outcome to the process exit code.
func outcomeToExitCode(o *scan.Outcome) int {
	switch {
	case o.Status == scan.StatusSuccess:
		return exitSuccess
	case o.Status == scan.StatusCanceled:
		return exitCanceled
	case o.Kind == "configuration":
		return exitConfig
	default:
		return exitFailed
	}
}

// exitCodeFor maps a setup error to an exit code.
func exitCodeFor(err error) int {
	if errors.Is(err, types.ErrConfiguration) {
		return exitConfig
	}
	return exitFailed
}

// serveMetrics exposes the collector on addr until the returned func runs.
func serveMetrics(addr string, collector *metrics.Collector, logger *log.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := collector.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", map[string]any{"addr": addr, "error": err.Error()})
		}
	}()
	logger.Info("serving metrics", map[string]any{"addr": addr})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
