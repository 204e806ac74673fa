package commands

import (
	"fmt"
	"strconv"

	"github.com/l3aro/go-trace-slicer/pkg/source"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <function> <slice_id> <trace_id>",
	Short: "Print a stored trace",
	Long: `Prints the statements and edges of one stored trace. With --source the
Go declaration enclosing the call site is printed as well.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn := args[0]
		sliceID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid slice id %q: %w", args[1], err)
		}
		traceID, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid trace id %q: %w", args[2], err)
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir, _ = cmd.Flags().GetString("output")
		}
		withSource, _ := cmd.Flags().GetBool("source")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		st := store.New(cfg.OutputDir)
		t, err := st.LoadTrace(fn, sliceID, traceID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			data, err := store.MarshalTrace(t)
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "=== Trace %s/%d/%d ===\n", t.TargetFunc, t.SliceID, t.TraceID)
		target := t.TargetNode()
		fmt.Fprintf(out, "Caller: %s\n", target.Func)
		if target.File != "" {
			fmt.Fprintf(out, "Location: %s:%d\n", target.File, target.Line)
		}
		printGraph(out, t.Graph, t.Target)

		if !withSource {
			return nil
		}
		if target.File == "" || target.Line == 0 {
			fmt.Fprintln(out, "\n(no source position recorded)")
			return nil
		}
		decl, err := source.EnclosingFunction(target.File, target.Line)
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		fmt.Fprintf(out, "\n--- %s:%d-%d ---\n%s\n", target.File, decl.StartLine, decl.EndLine, decl.Text)
		return nil
	},
}

func init() {
	showCmd.Flags().StringP("output", "o", "", "Trace store directory")
	showCmd.Flags().Bool("source", false, "Print the source of the enclosing function")
	showCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
