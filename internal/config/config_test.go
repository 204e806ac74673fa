package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Depth", cfg.Depth, 5},
		{"Target", cfg.Target, ""},
		{"TargetInclude", cfg.TargetInclude, ""},
		{"TargetExclude", cfg.TargetExclude, ""},
		{"OutputDir", cfg.OutputDir, "data"},
		{"IntrinsicPattern", cfg.IntrinsicPattern, `^(llvm\.(dbg|lifetime)\..*|runtime\.KeepAlive)$`},
		{"CacheEnabled", cfg.CacheEnabled, true},
		{"CacheSize", cfg.CacheSize, 16},
		{"Debug", cfg.Debug, false},
		{"LogJSON", cfg.LogJSON, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:        "zero depth",
			mutate:      func(c *Config) { c.Depth = 0 },
			wantErr:     true,
			errContains: "depth must be positive",
		},
		{
			name:        "negative depth",
			mutate:      func(c *Config) { c.Depth = -3 },
			wantErr:     true,
			errContains: "depth must be positive",
		},
		{
			name:        "empty output dir",
			mutate:      func(c *Config) { c.OutputDir = "" },
			wantErr:     true,
			errContains: "output_dir is required",
		},
		{
			name:        "bad intrinsic pattern",
			mutate:      func(c *Config) { c.IntrinsicPattern = "(" },
			wantErr:     true,
			errContains: "invalid intrinsic_pattern",
		},
		{
			name:        "bad callers pattern",
			mutate:      func(c *Config) { c.Callers = "[" },
			wantErr:     true,
			errContains: "invalid callers pattern",
		},
		{
			name:        "bad target include pattern",
			mutate:      func(c *Config) { c.TargetInclude = "(" },
			wantErr:     true,
			errContains: "invalid target_include pattern",
		},
		{
			name:        "bad target exclude pattern",
			mutate:      func(c *Config) { c.TargetExclude = "*" },
			wantErr:     true,
			errContains: "invalid target_exclude pattern",
		},
		{
			name:   "target is optional for validation",
			mutate: func(c *Config) { c.Target = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		envVars    map[string]string
		checkCfg   func(*testing.T, *Config)
		wantErr    bool
	}{
		{
			name: "load valid config from file",
			configYAML: `
depth: 3
target: os.Open
output_dir: /tmp/traces
cache_enabled: false
debug: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Depth != 3 {
					t.Errorf("Depth = %v, want 3", cfg.Depth)
				}
				if cfg.Target != "os.Open" {
					t.Errorf("Target = %v, want os.Open", cfg.Target)
				}
				if cfg.OutputDir != "/tmp/traces" {
					t.Errorf("OutputDir = %v, want /tmp/traces", cfg.OutputDir)
				}
				if cfg.CacheEnabled {
					t.Error("CacheEnabled = true, want false")
				}
				if !cfg.Debug {
					t.Error("Debug = false, want true")
				}
			},
		},
		{
			name:       "missing keys keep defaults",
			configYAML: "target: fmt.Println\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Depth != 5 {
					t.Errorf("Depth = %v, want 5", cfg.Depth)
				}
				if cfg.OutputDir != "data" {
					t.Errorf("OutputDir = %v, want data", cfg.OutputDir)
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "depth: 3\n",
			envVars:    map[string]string{"GTS_DEPTH": "7", "GTS_TARGET": "io.ReadAll"},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Depth != 7 {
					t.Errorf("Depth = %v, want 7", cfg.Depth)
				}
				if cfg.Target != "io.ReadAll" {
					t.Errorf("Target = %v, want io.ReadAll", cfg.Target)
				}
			},
		},
		{
			name:       "invalid depth fails validation",
			configYAML: "depth: 0\n",
			wantErr:    true,
		},
		{
			name:       "invalid yaml",
			configYAML: "depth: [\n",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFromFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkCfg != nil && cfg != nil {
				tt.checkCfg(t, cfg)
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFromFile() on a missing file returned nil error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = "net/http.Get"
	cfg.Depth = 2

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded config = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadPriority(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	global := DefaultConfig()
	global.Depth = 2
	global.Target = "global.Target"
	global.OutputDir = "global-out"
	if err := global.Save(filepath.Join(home, ".gts", "config.yaml")); err != nil {
		t.Fatalf("saving global config: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(project, ".gts"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ".gts", "config.yaml"), []byte("target: project.Target\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GTS_TARGET", "env.Target")
	t.Setenv("GTS_DEPTH", "4")

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(project); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target != "project.Target" {
		t.Errorf("Target = %v, want project.Target", cfg.Target)
	}
	if cfg.Depth != 4 {
		t.Errorf("Depth = %v, want 4 from env", cfg.Depth)
	}
	if cfg.OutputDir != "global-out" {
		t.Errorf("OutputDir = %v, want global-out", cfg.OutputDir)
	}
}

func TestSlicerOptions(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.SlicerOptions(cfg.Target); !errors.Is(err, ErrTargetRequired) {
		t.Fatalf("SlicerOptions() without target error = %v, want ErrTargetRequired", err)
	}

	cfg.Target = "os.Open"
	cfg.Depth = 3
	cfg.Callers = `^main\.`
	opts, err := cfg.SlicerOptions(cfg.Target)
	if err != nil {
		t.Fatalf("SlicerOptions() error = %v", err)
	}
	if opts.Target != "os.Open" || opts.Depth != 3 {
		t.Errorf("SlicerOptions() = %+v", opts)
	}
	if opts.Callers == nil || !opts.Callers.MatchString("main.run") {
		t.Errorf("SlicerOptions().Callers = %v, want pattern matching main.run", opts.Callers)
	}

	selected, err := cfg.SlicerOptions("io.ReadAll")
	if err != nil {
		t.Fatalf("SlicerOptions(io.ReadAll) error = %v", err)
	}
	if selected.Target != "io.ReadAll" || selected.Callers == nil {
		t.Errorf("SlicerOptions(io.ReadAll) = %+v, want callers pattern kept", selected)
	}

	// later changes to the config do not leak into the snapshot
	cfg.Depth = 9
	if opts.Depth != 3 {
		t.Errorf("snapshot depth changed to %d", opts.Depth)
	}
}

func TestRequireTargets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"nothing selected", func(*Config) {}, true},
		{"target", func(c *Config) { c.Target = "os.Open" }, false},
		{"include only", func(c *Config) { c.TargetInclude = `^os\.` }, false},
		{"exclude only", func(c *Config) { c.TargetExclude = `^fmt\.` }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.RequireTargets()
			if tt.wantErr && !errors.Is(err, ErrTargetRequired) {
				t.Fatalf("RequireTargets() error = %v, want ErrTargetRequired", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("RequireTargets() error = %v", err)
			}
		})
	}
}

func TestTargetFilter(t *testing.T) {
	cfg := DefaultConfig()
	f, err := cfg.TargetFilter()
	if err != nil {
		t.Fatalf("TargetFilter() error = %v", err)
	}
	if !f.Empty() {
		t.Errorf("TargetFilter() = %+v, want empty filter", f)
	}

	t.Setenv("GTS_TARGET_INCLUDE", `^os\.`)
	t.Setenv("GTS_TARGET_EXCLUDE", `Exit$`)
	applyEnvOverrides(cfg)
	f, err = cfg.TargetFilter()
	if err != nil {
		t.Fatalf("TargetFilter() error = %v", err)
	}
	if !f.Match("os.Open") || f.Match("os.Exit") || f.Match("io.ReadAll") {
		t.Errorf("TargetFilter() from env selects the wrong callees")
	}
}
