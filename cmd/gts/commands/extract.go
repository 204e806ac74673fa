package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/l3aro/go-trace-slicer/internal/log"
	"github.com/l3aro/go-trace-slicer/pkg/cache"
	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/loader"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/spf13/cobra"
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract [packages]",
	Short: "Slice every call site of a function into traces",
	Long: `Loads the given packages (default "."), builds their def-use graph and
writes one trace per call site of the target function to the trace store.
Every run records a new slice for the target.

Without --target, every directly called function that matches --include-target
and does not match --exclude-target is sliced in turn.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyExtractFlags(cmd); err != nil {
			return err
		}
		patterns := args
		if len(patterns) == 0 {
			patterns = []string{"."}
		}
		dir, _ := cmd.Flags().GetString("dir")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		slices, err := runExtract(cmd, dir, patterns)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(slices, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if len(slices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No target function selected.")
		}
		for _, sl := range slices {
			printSlice(cmd, sl)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringP("target", "t", "", "Function whose call sites are sliced (e.g. os.Open)")
	extractCmd.Flags().String("include-target", "", "Without --target, slice callees matching this regexp")
	extractCmd.Flags().String("exclude-target", "", "Without --target, skip callees matching this regexp")
	extractCmd.Flags().IntP("depth", "n", 0, "Neighborhood radius in hops")
	extractCmd.Flags().String("callers", "", "Only slice call sites inside functions matching this regexp")
	extractCmd.Flags().StringP("output", "o", "", "Trace store directory")
	extractCmd.Flags().String("dir", "", "Directory to resolve packages from")
	extractCmd.Flags().Bool("no-cache", false, "Rebuild the graph even if a cached one matches")
	extractCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

// applyExtractFlags copies explicitly set flags over the loaded config.
func applyExtractFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target, _ = flags.GetString("target")
	}
	if flags.Changed("include-target") {
		cfg.TargetInclude, _ = flags.GetString("include-target")
	}
	if flags.Changed("exclude-target") {
		cfg.TargetExclude, _ = flags.GetString("exclude-target")
	}
	if flags.Changed("depth") {
		cfg.Depth, _ = flags.GetInt("depth")
	}
	if flags.Changed("callers") {
		cfg.Callers, _ = flags.GetString("callers")
	}
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		cfg.CacheEnabled = !noCache
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return cfg.RequireTargets()
}

func runExtract(cmd *cobra.Command, dir string, patterns []string) ([]slicer.Slice, error) {
	intrinsics, err := cfg.Intrinsics()
	if err != nil {
		return nil, err
	}
	selection, err := cfg.TargetFilter()
	if err != nil {
		return nil, err
	}

	spinner := log.NewProgressSpinner(os.Stderr, "Loading packages...")
	spinner.Start()
	defer spinner.Stop()

	prog, err := loader.Load(cmd.Context(), dir, patterns...)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded packages", "patterns", strings.Join(patterns, " "), "files", len(prog.Files))

	spinner.Message("Building def-use graph...")
	builder := dugraph.NewBuilder(dugraph.WithIntrinsics(intrinsics), dugraph.WithLogger(logger))
	g, symbols, err := moduleGraph(prog, builder, patterns)
	if err != nil {
		return nil, err
	}

	targets := []string{cfg.Target}
	if cfg.Target == "" {
		targets = slicer.Targets(g, selection)
		logger.Debug("selected targets", "count", len(targets))
	}

	spinner.Message("Extracting traces...")
	st := store.New(cfg.OutputDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	slices := make([]slicer.Slice, 0, len(targets))
	for _, target := range targets {
		sl, err := extractTarget(st, g, symbols, target, strings.Join(patterns, " "))
		if err != nil {
			return nil, err
		}
		slices = append(slices, sl)
	}
	return slices, nil
}

// extractTarget records one new slice of target in st.
func extractTarget(st *store.Store, g *dugraph.Graph, symbols []string, target, pkg string) (slicer.Slice, error) {
	opts, err := cfg.SlicerOptions(target)
	if err != nil {
		return slicer.Slice{}, err
	}
	ex, err := slicer.NewExtractor(opts, logger)
	if err != nil {
		return slicer.Slice{}, err
	}

	sliceID, err := st.NextSliceID(target)
	if err != nil {
		return slicer.Slice{}, err
	}
	traces, err := ex.ExtractProgram(g, symbols, sliceID)
	if err != nil {
		return slicer.Slice{}, err
	}
	for i := range traces {
		if err := st.SaveTrace(&traces[i]); err != nil {
			return slicer.Slice{}, err
		}
	}

	sl := slicer.NewSlice(pkg, sliceID, target, traces)
	if err := st.AddSlice(sl); err != nil {
		return slicer.Slice{}, err
	}
	logger.Info("extracted slice", "func", target, "slice", sliceID, "traces", len(traces))
	return sl, nil
}

// moduleGraph builds the def-use graph of prog, reusing a cached graph when
// the source files and build settings are unchanged.
func moduleGraph(prog *loader.Program, builder *dugraph.Builder, patterns []string) (*dugraph.Graph, []string, error) {
	if !cfg.CacheEnabled {
		g, err := builder.BuildFunctions(prog.Functions())
		return g, prog.Symbols(), err
	}

	path := store.New(cfg.OutputDir).CachePath()
	c := cache.New(cfg.CacheSize)
	if err := c.LoadFile(path); err != nil {
		logger.Warn("ignoring unreadable graph cache", "path", path, "error", err)
		c = cache.New(cfg.CacheSize)
	}

	extra := append([]string{cfg.IntrinsicPattern}, patterns...)
	key, err := cache.HashFiles(prog.Files, extra...)
	if err != nil {
		return nil, nil, err
	}

	// the file is rewritten only when entries were added or dropped
	persist := func() error {
		hits, misses := c.Stats()
		logger.Debug("graph cache stats", "entries", c.Len(), "hits", hits, "misses", misses, "modified", c.Modified())
		if !c.Modified() {
			return nil
		}
		return c.SaveFile(path)
	}

	if e, ok := c.Get(key); ok {
		g, err := e.Graph()
		if err == nil {
			logger.Debug("graph cache hit", "key", key[:12], "nodes", g.Len())
			return g, e.Symbols, persist()
		}
		logger.Warn("discarding corrupt cache entry", "key", key[:12], "error", err)
		c.Delete(key)
	}

	g, err := builder.BuildFunctions(prog.Functions())
	if err != nil {
		return nil, nil, err
	}
	symbols := prog.Symbols()
	e, err := cache.NewEntry(key, g, symbols)
	if err != nil {
		return nil, nil, err
	}
	c.Put(e)
	if err := persist(); err != nil {
		return nil, nil, err
	}
	logger.Debug("graph cache miss", "key", key[:12], "nodes", g.Len(), "edges", g.EdgeCount())
	return g, symbols, nil
}

func printSlice(cmd *cobra.Command, sl slicer.Slice) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Slice %d of %s ===\n", sl.SliceID, sl.Func)
	fmt.Fprintf(out, "Packages: %s\n", sl.Package)
	fmt.Fprintf(out, "Traces: %d\n", sl.Traces())
	for _, site := range sl.Sites {
		if site.File != "" {
			fmt.Fprintf(out, "  [%d] %s (%s:%d)\n", site.TraceID, site.Caller, site.File, site.Line)
		} else {
			fmt.Fprintf(out, "  [%d] %s\n", site.TraceID, site.Caller)
		}
	}
}
