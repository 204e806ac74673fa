package commands

import (
	"encoding/json"
	"fmt"

	"github.com/l3aro/go-trace-slicer/pkg/filter"
	"github.com/l3aro/go-trace-slicer/pkg/idset"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// filterCmd represents the filter command
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Label undersized traces",
	Long: `Grades every stored trace of the target function (or of all functions
with --all) and writes the identifiers of the undersized ones to a label.
A trace is kept when its call arguments are initialized or its result is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("target") {
			cfg.Target, _ = flags.GetString("target")
		}
		if flags.Changed("output") {
			cfg.OutputDir, _ = flags.GetString("output")
		}
		all, _ := flags.GetBool("all")
		label, _ := flags.GetString("label")
		jsonOutput, _ := flags.GetBool("json")

		fn := cfg.Target
		if all {
			fn = ""
		} else if err := cfg.RequireTarget(); err != nil {
			return fmt.Errorf("%w (use --target or --all)", err)
		}

		st := store.New(cfg.OutputDir)
		traces, err := st.LoadTraces(fn)
		if err != nil {
			return fmt.Errorf("loading traces: %w", err)
		}

		undersized, report, err := filter.Run(traces, filter.Options{Debug: cfg.Debug, Logger: logger})
		if err != nil {
			return fmt.Errorf("filtering traces: %w", err)
		}

		prev, err := idset.LoadLabel(st.LabelDir(), label)
		if err != nil {
			return err
		}
		if err := idset.Label(st.LabelDir(), label, filter.Relabel(prev, undersized, fn)); err != nil {
			return err
		}
		logger.Info("labelled traces", "label", label, "total", report.Total, "undersized", report.Undersized)

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Traces: %d\n", report.Total)
		fmt.Fprintf(out, "Kept: %d\n", report.Kept)
		fmt.Fprintf(out, "Undersized: %d\n", report.Undersized)
		fmt.Fprintf(out, "Label: %s\n", idset.LabelPath(st.LabelDir(), label))
		return nil
	},
}

func init() {
	filterCmd.Flags().StringP("target", "t", "", "Function whose traces are graded")
	filterCmd.Flags().Bool("all", false, "Grade the traces of every function")
	filterCmd.Flags().StringP("output", "o", "", "Trace store directory")
	filterCmd.Flags().StringP("label", "l", filter.UndersizedLabel, "Label to record undersized traces under")
	filterCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
