package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
	"gopkg.in/yaml.v3"
)

// ErrTargetRequired is returned when extraction or filtering is requested
// without a target function.
var ErrTargetRequired = errors.New("target function is required")

// Config holds all configuration for go-trace-slicer
type Config struct {
	// Depth bounds the neighborhood extracted around each call site
	Depth int `yaml:"depth" env:"GTS_DEPTH"`

	// Target is the function whose call sites are sliced
	Target string `yaml:"target" env:"GTS_TARGET"`

	// TargetInclude and TargetExclude select several targets at once when
	// Target is empty
	TargetInclude string `yaml:"target_include" env:"GTS_TARGET_INCLUDE"`
	TargetExclude string `yaml:"target_exclude" env:"GTS_TARGET_EXCLUDE"`

	// Callers restricts extraction to call sites inside matching functions
	Callers string `yaml:"callers" env:"GTS_CALLERS"`

	// OutputDir is the root of the trace database
	OutputDir string `yaml:"output_dir" env:"GTS_OUTPUT_DIR"`

	// IntrinsicPattern matches functions excluded from graph construction
	IntrinsicPattern string `yaml:"intrinsic_pattern" env:"GTS_INTRINSIC_PATTERN"`

	// CacheEnabled keeps built module graphs under <output_dir>/cache
	CacheEnabled bool `yaml:"cache_enabled" env:"GTS_CACHE_ENABLED"`
	// CacheSize bounds the number of cached module graphs
	CacheSize int `yaml:"cache_size" env:"GTS_CACHE_SIZE"`

	// Logging
	Debug   bool `yaml:"debug" env:"GTS_DEBUG"`
	LogJSON bool `yaml:"log_json" env:"GTS_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Depth:            slicer.DefaultDepth,
		Target:           "",
		TargetInclude:    "",
		TargetExclude:    "",
		Callers:          "",
		OutputDir:        "data",
		IntrinsicPattern: dugraph.DefaultIntrinsicPattern,
		CacheEnabled:     true,
		CacheSize:        16,
		Debug:            false,
		LogJSON:          false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.gts/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gts/config.yaml"
	}
	return filepath.Join(home, ".gts", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gts/config.yaml)
func ProjectConfigFilePath() string {
	return ".gts/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.gts/config.yaml)
// 2. Environment variables
// 3. Global config (~/.gts/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	globalConfigPath := GlobalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	applyEnvOverrides(cfg)

	projectConfigPath := ProjectConfigFilePath()
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GTS_DEPTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Depth = i
		}
	}
	if v := os.Getenv("GTS_TARGET"); v != "" {
		cfg.Target = v
	}
	if v := os.Getenv("GTS_TARGET_INCLUDE"); v != "" {
		cfg.TargetInclude = v
	}
	if v := os.Getenv("GTS_TARGET_EXCLUDE"); v != "" {
		cfg.TargetExclude = v
	}
	if v := os.Getenv("GTS_CALLERS"); v != "" {
		cfg.Callers = v
	}
	if v := os.Getenv("GTS_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("GTS_INTRINSIC_PATTERN"); v != "" {
		cfg.IntrinsicPattern = v
	}
	if v := os.Getenv("GTS_CACHE_ENABLED"); v != "" {
		cfg.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("GTS_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GTS_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("GTS_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Depth <= 0 {
		return fmt.Errorf("depth must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if _, err := regexp.Compile(c.IntrinsicPattern); err != nil {
		return fmt.Errorf("invalid intrinsic_pattern: %w", err)
	}
	if c.Callers != "" {
		if _, err := regexp.Compile(c.Callers); err != nil {
			return fmt.Errorf("invalid callers pattern: %w", err)
		}
	}
	if _, err := c.TargetFilter(); err != nil {
		return err
	}
	return nil
}

// RequireTarget checks that a target function is set.
func (c *Config) RequireTarget() error {
	if c.Target == "" {
		return ErrTargetRequired
	}
	return nil
}

// RequireTargets checks that extraction has something to slice: a target
// function or a target filter.
func (c *Config) RequireTargets() error {
	if c.Target == "" && c.TargetInclude == "" && c.TargetExclude == "" {
		return ErrTargetRequired
	}
	return nil
}

// TargetFilter compiles the target selection patterns.
func (c *Config) TargetFilter() (slicer.TargetFilter, error) {
	var f slicer.TargetFilter
	if c.TargetInclude != "" {
		re, err := regexp.Compile(c.TargetInclude)
		if err != nil {
			return f, fmt.Errorf("invalid target_include pattern: %w", err)
		}
		f.Include = re
	}
	if c.TargetExclude != "" {
		re, err := regexp.Compile(c.TargetExclude)
		if err != nil {
			return f, fmt.Errorf("invalid target_exclude pattern: %w", err)
		}
		f.Exclude = re
	}
	return f, nil
}

// SlicerOptions snapshots the extraction settings for one target, which is
// either c.Target or a callee selected by TargetFilter.
func (c *Config) SlicerOptions(target string) (slicer.Options, error) {
	if target == "" {
		return slicer.Options{}, ErrTargetRequired
	}
	opts := slicer.Options{Target: target, Depth: c.Depth}
	if c.Callers != "" {
		re, err := regexp.Compile(c.Callers)
		if err != nil {
			return slicer.Options{}, fmt.Errorf("invalid callers pattern: %w", err)
		}
		opts.Callers = re
	}
	return opts, opts.Validate()
}

// Intrinsics compiles the intrinsic pattern.
func (c *Config) Intrinsics() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.IntrinsicPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid intrinsic_pattern: %w", err)
	}
	return re, nil
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
