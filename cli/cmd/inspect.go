package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/cli/render"
	"github.com/pithecene-io/tally/record"
)

// InspectCommand returns the inspect command: a read-only view of a recorded scan.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the recorded points of a scan",
		ArgsUsage: "<scan-id>",
		Flags: []cli.Flag{
			FormatFlag,
			ConfigFlag,
			&cli.StringFlag{Name: "record-backend", Usage: "Record storage: fs or s3"},
			&cli.StringFlag{Name: "record-path", Usage: "Record path (fs: directory, s3: bucket/prefix)"},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("scan-id required", exitConfig)
	}
	scanID := c.Args().First()

	rc := config.Default().Recording
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
		rc = cfg.Recording
	}
	if c.IsSet("record-backend") {
		rc.Backend = c.String("record-backend")
	}
	if c.IsSet("record-path") {
		rc.Path = c.String("record-path")
	}
	if rc.Path == "" {
		return cli.Exit("record path required (--record-path or recording.path)", exitConfig)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	var factory lode.StoreFactory
	switch rc.Backend {
	case config.RecordingS3:
		bucket, prefix := record.ParseS3Path(rc.Path)
		factory, err = record.NewS3Factory(c.Context, record.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       rc.Region,
			Endpoint:     rc.Endpoint,
			UsePathStyle: rc.S3PathStyle,
		})
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
	case config.RecordingFS, "":
		factory = lode.NewFSFactory(rc.Path)
	default:
		return cli.Exit(fmt.Sprintf("unknown record backend %q", rc.Backend), exitConfig)
	}

	dataset := rc.Dataset
	if dataset == "" {
		dataset = record.DefaultDataset
	}
	ds, err := record.NewDataset(dataset, factory)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	stored, err := record.QueryScan(c.Context, ds, scanID)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	if r.Format() != render.FormatTable {
		return r.Render(stored)
	}
	return r.Render(pointTable(stored.Points))
}

// pointTable lays out stored point records, one column per reading.
func pointTable(points []map[string]any) render.Table {
	names := map[string]struct{}{}
	for _, p := range points {
		if readings, ok := p["readings"].(map[string]any); ok {
			for name := range readings {
				names[name] = struct{}{}
			}
		}
	}
	channels := slices.Sorted(maps.Keys(names))

	t := render.Table{Columns: append([]string{"point", "ts"}, channels...)}
	for _, p := range points {
		readings, _ := p["readings"].(map[string]any)
		row := []string{fmt.Sprint(p["index"]), fmt.Sprint(p["ts"])}
		for _, ch := range channels {
			row = append(row, formatStored(readings[ch]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// formatStored formats a reading decoded from JSONL.
func formatStored(v any) string {
	switch x := v.(type) {
	case []any:
		return fmt.Sprintf("[%d values]", len(x))
	default:
		return formatReading(x)
	}
}
