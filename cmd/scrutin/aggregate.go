package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrutin/scrutin/pkg/results"
	"github.com/scrutin/scrutin/pkg/surface"
)

func newAggregateCmd() *cobra.Command {
	var opts aggregateOpts

	cmd := &cobra.Command{
		Use:   "aggregate <rows.json>",
		Short: "Aggregate a file of unit rows and show one node",
		Long: `Builds the hierarchy from a JSON file of unit rows and renders the
totals and candidate ranking of the national root or of the node selected
with --level and --id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.rowsPath = args[0]
			return runAggregate(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.hierarchy, "hierarchy", "electoral", "Hierarchy: electoral or geographic")
	cmd.Flags().StringVar(&opts.level, "level", "", "Level of the node to show (default: national root)")
	cmd.Flags().StringVar(&opts.id, "id", "", "ID of the node to show")
	cmd.Flags().StringVar(&opts.outputFmt, "output", "text", "Output format: text, json or markdown")

	return cmd
}

type aggregateOpts struct {
	rowsPath  string
	hierarchy string
	level     string
	id        string
	outputFmt string
}

func runAggregate(w io.Writer, opts aggregateOpts) error {
	h, ok := results.HierarchyByName(opts.hierarchy)
	if !ok {
		return fmt.Errorf("unknown hierarchy %q", opts.hierarchy)
	}
	renderer, ok := surface.ForFormat(opts.outputFmt)
	if !ok {
		return fmt.Errorf("unknown output format %q", opts.outputFmt)
	}
	if (opts.level == "") != (opts.id == "") {
		return fmt.Errorf("--level and --id must be given together")
	}

	rows, err := readRows(opts.rowsPath)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].Imported = true
	}

	root, report := h.Build(rows, nil)
	printReport(report)

	node := root
	if opts.level != "" {
		level := results.Level(opts.level)
		if !h.Has(level) {
			return fmt.Errorf("hierarchy %s has no level %q", h.Name, opts.level)
		}
		node, ok = results.Find(root, level, opts.id)
		if !ok {
			return fmt.Errorf("no %s %q in %s", opts.level, opts.id, opts.rowsPath)
		}
	}

	fmt.Fprintf(os.Stderr, "Aggregated %d units (%d rejected)\n", len(rows)-len(report.Rejected), len(report.Rejected))
	return renderer.Render(w, surface.NewReport(node, nil, report.Violations))
}
