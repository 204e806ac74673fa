package commands

import (
	"encoding/json"
	"fmt"

	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count the slices and traces in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("output") {
			cfg.OutputDir, _ = flags.GetString("output")
		}
		fn, _ := flags.GetString("target")
		jsonOutput, _ := flags.GetBool("json")

		counts, err := store.New(cfg.OutputDir).Counts(fn)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if counts == nil {
				counts = []store.Count{}
			}
			data, err := json.MarshalIndent(counts, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		var slices, traces int
		for _, c := range counts {
			fmt.Fprintf(out, "%s: %d slices, %d traces\n", c.Func, c.Slices, c.Traces)
			slices += c.Slices
			traces += c.Traces
		}
		fmt.Fprintf(out, "Total: %d functions, %d slices, %d traces\n", len(counts), slices, traces)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringP("target", "t", "", "Only count this function")
	statsCmd.Flags().StringP("output", "o", "", "Trace store directory")
	statsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
