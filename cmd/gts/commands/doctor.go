package commands

import (
	"fmt"
	"os"

	"github.com/l3aro/go-trace-slicer/internal/config"
	"github.com/l3aro/go-trace-slicer/internal/healthcheck"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and the trace store",
	Long: `Checks the configuration and verifies that the go toolchain is available,
the trace store manifest is readable and the graph cache decodes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		effectivePath := cfgPath
		if effectivePath == "" {
			effectivePath = effectiveConfigPath()
		}

		result, err := healthcheck.Check(cfg, cfgPath, effectivePath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if result.HasError() {
			return fmt.Errorf("health check failed: one or more checks reported an error")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest priority config file that exists.
func effectiveConfigPath() string {
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Print("Using config: defaults\n\n")
	}

	for _, status := range []healthcheck.ComponentStatus{result.Toolchain, result.Store, result.Cache} {
		fmt.Printf("%s:\n", status.Name)
		if status.Detail != "" {
			fmt.Printf("  %s\n", status.Detail)
		}
		fmt.Printf("  Status: %s %s\n", formatStatusIcon(status.Status), status.Status)
		if status.Error != "" && status.Status == "error" {
			fmt.Printf("  Error: %s\n", status.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "missing", "disabled":
		return "◐"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
