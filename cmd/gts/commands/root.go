package commands

import (
	"fmt"

	"github.com/l3aro/go-trace-slicer/internal/config"
	"github.com/l3aro/go-trace-slicer/internal/log"
	"github.com/spf13/cobra"
)

var (
	// cfg is the effective configuration, loaded before any subcommand runs
	cfg *config.Config
	// cfgPath is the file cfg was read from, if one was given
	cfgPath string

	logger log.Logger = log.Discard()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gts",
	Short: "go-trace-slicer - Def-use trace extraction and filtering",
	Long: `go-trace-slicer extracts bounded def-use neighborhoods around the call
sites of a target function and labels the ones that carry too little data flow.

Commands:
  extract     Slice every call site of a function into traces
  filter      Label undersized traces
  features    Extract per-trace features
  stats       Count the slices and traces in the store
  dugraph     Print the def-use graph of one function
  show        Print a stored trace
  labels      List the traces recorded under a label
  init        Create a configuration file interactively
  doctor      Check the toolchain, trace store and cache

Use "gts [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgPath != "" {
			cfg, err = config.LoadFromFile(cfgPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			cfg.Debug = true
		}
		level := log.InfoLevel
		if cfg.Debug {
			level = log.DebugLevel
		}
		logger = log.New(log.LoggerConfig{
			Level:      level,
			JSONOutput: cfg.LogJSON,
			Output:     cmd.ErrOrStderr(),
		})
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: .gts/config.yaml, then ~/.gts/config.yaml)")
	RootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// Add subcommands
	RootCmd.AddCommand(extractCmd)
	RootCmd.AddCommand(filterCmd)
	RootCmd.AddCommand(dugraphCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(labelsCmd)
	RootCmd.AddCommand(featuresCmd)
	RootCmd.AddCommand(statsCmd)
}
