package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/render"
	"github.com/pithecene-io/tally/iox"
	"github.com/pithecene-io/tally/types"
)

// DescribeCommand returns the describe command. It builds the configured
// detector and lists the channels a scan would publish, without counting.
func DescribeCommand() *cli.Command {
	return &cli.Command{
		Name:   "describe",
		Usage:  "List the channels the configured detector publishes",
		Flags:  append(strategyFlags(), FormatFlag),
		Action: describeAction,
	}
}

func describeAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	in, err := buildInstrument(cfg, nil, nil)
	if err != nil {
		return cli.Exit(err.Error(), exitCodeFor(err))
	}
	defer iox.DiscardClose(in)

	descs := in.detector.Describe()
	if r.Format() == render.FormatTable {
		return r.Render(descriptorTable(descs))
	}
	out := make([]types.Descriptor, 0, len(descs))
	for _, name := range slices.Sorted(maps.Keys(descs)) {
		out = append(out, descs[name])
	}
	return r.Render(out)
}

func descriptorTable(descs map[string]types.Descriptor) render.Table {
	t := render.Table{Columns: []string{"name", "source", "dtype", "units", "precision"}}
	for _, name := range slices.Sorted(maps.Keys(descs)) {
		d := descs[name]
		precision := ""
		if d.Precision != nil {
			precision = fmt.Sprint(*d.Precision)
		}
		t.Rows = append(t.Rows, []string{d.Name, d.Source, string(d.Dtype), d.Units, precision})
	}
	return t
}
