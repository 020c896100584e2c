// Package cmd provides CLI commands for the tally binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag points at a tally.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to tally.yaml (default: simulated instrument)",
		EnvVars: []string{"TALLY_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for commands that touch no apparatus.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag}
}

// strategyFlags override the strategy sections of the config file.
func strategyFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "instrument", Usage: "Instrument name"},
		&cli.StringFlag{Name: "telemetry", Usage: "Telemetry backend: sim or redis"},
		&cli.StringFlag{Name: "redis-url", Usage: "Redis URL (redis backend)", EnvVars: []string{"TALLY_REDIS_URL"}},
		&cli.StringFlag{Name: "controller", Usage: "Controller: run_per_point, run_per_scan, period_per_point"},
		&cli.BoolFlag{Name: "save-run", Usage: "End runs instead of aborting them"},
		&cli.StringFlag{Name: "waiter", Usage: "Waiter: good_frames, period_good_frames, good_uah, m_events, time"},
		&cli.Float64Flag{Name: "target", Usage: "Counter advance per point (counter waiters)"},
		&cli.DurationFlag{Name: "duration", Usage: "Counting time per point (time waiter)"},
		&cli.StringFlag{Name: "reducer", Usage: "Reducer: good_frames_normalizer, period_good_frames_normalizer, monitor_normalizer, period_spec_integrals"},
		&cli.IntSliceFlag{Name: "detectors", Usage: "Detector spectra"},
		&cli.IntSliceFlag{Name: "monitors", Usage: "Monitor spectra"},
	}
}
