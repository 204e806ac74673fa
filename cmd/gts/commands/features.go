package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/l3aro/go-trace-slicer/pkg/features"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Extract per-trace features",
	Long: `Computes the features of every stored trace of the target function (or of
all functions with --all) and writes them to features/<func>/<slice>/<trace>.json
in the trace store. Features describe whether the result of the call is
compared, returned, stored or passed on, and where its leading arguments
come from.`,
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
		report, err := features.All().Run(traces, st)
		if err != nil {
			return fmt.Errorf("extracting features: %w", err)
		}
		logger.Info("extracted features", "traces", report.Traces, "dir", st.FeatureDir())

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Traces: %d\n", report.Traces)
		names := make([]string, 0, len(report.Applied))
		for name := range report.Applied {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %-10s %d\n", name, report.Applied[name])
		}
		fmt.Fprintf(out, "Features: %s\n", st.FeatureDir())
		return nil
	},
}

func init() {
	featuresCmd.Flags().StringP("target", "t", "", "Function whose traces are processed")
	featuresCmd.Flags().Bool("all", false, "Process the traces of every function")
	featuresCmd.Flags().StringP("output", "o", "", "Trace store directory")
	featuresCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
