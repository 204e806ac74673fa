package commands

import (
	"encoding/json"
	"fmt"

	"github.com/l3aro/go-trace-slicer/pkg/filter"
	"github.com/l3aro/go-trace-slicer/pkg/idset"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// labelsCmd represents the labels command
var labelsCmd = &cobra.Command{
	Use:   "labels [label]",
	Short: "List the traces recorded under a label",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := filter.UndersizedLabel
		if len(args) == 1 {
			label = args[0]
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir, _ = cmd.Flags().GetString("output")
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")

		set, err := idset.LoadLabel(store.New(cfg.OutputDir).LabelDir(), label)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			data, err := json.MarshalIndent(set.Sorted(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Label %s: %d traces\n", label, set.Len())
		for _, id := range set.Sorted() {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	},
}

func init() {
	labelsCmd.Flags().StringP("output", "o", "", "Trace store directory")
	labelsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
