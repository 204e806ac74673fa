package commands

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/l3aro/go-trace-slicer/internal/config"
	"github.com/l3aro/go-trace-slicer/internal/healthcheck"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gts configuration interactively",
	Long: `Guides you through setting up gts configuration step by step.
Creates a config file with the target function, slice depth and trace store
location.`,
	Args: cobra.NoArgs,
	// init must work even when an existing config file is invalid
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Slicing ===
	depthText := strconv.Itoa(cfg.Depth)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target function").
				Description("Fully qualified symbol whose call sites are sliced").
				Placeholder("os.Open").
				Value(&cfg.Target),
			huh.NewInput().
				Title("Slice depth").
				Description("Number of def-use hops kept around each call site").
				Placeholder(depthText).
				Value(&depthText).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n <= 0 {
						return fmt.Errorf("depth must be a positive integer")
					}
					return nil
				}),
			huh.NewInput().
				Title("Target include filter (optional, used without a target)").
				Description("Regexp over callee symbols to slice").
				Placeholder("optional").
				Value(&cfg.TargetInclude).
				Validate(validPattern),
			huh.NewInput().
				Title("Target exclude filter (optional, used without a target)").
				Description("Regexp over callee symbols to skip").
				Placeholder("optional").
				Value(&cfg.TargetExclude).
				Validate(validPattern),
			huh.NewInput().
				Title("Caller filter (optional, press Enter to skip)").
				Description("Regexp over enclosing function names").
				Placeholder("optional").
				Value(&cfg.Callers),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Depth, _ = strconv.Atoi(depthText)

	// === SECTION 2: Storage ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trace store directory").
				Placeholder("data").
				Value(&cfg.OutputDir),
			huh.NewConfirm().
				Title("Cache module graphs between runs?").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.CacheEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Save Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the config be saved?").
				Options(
					huh.NewOption("Project (.gts/config.yaml)", "project"),
					huh.NewOption("Global (~/.gts/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Show config preview
	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Target: %s\n", orNone(cfg.Target))
	fmt.Printf("Include targets: %s\n", orNone(cfg.TargetInclude))
	fmt.Printf("Exclude targets: %s\n", orNone(cfg.TargetExclude))
	fmt.Printf("Depth: %d\n", cfg.Depth)
	fmt.Printf("Callers: %s\n", orNone(cfg.Callers))
	fmt.Printf("Output dir: %s\n", cfg.OutputDir)
	fmt.Printf("Graph cache: %t\n", cfg.CacheEnabled)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Println("\n=== Running Health Check ===")
	result, err := healthcheck.Check(cfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	RootCmd.AddCommand(initCmd)
}

func validPattern(s string) error {
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("invalid regexp: %w", err)
	}
	return nil
}
