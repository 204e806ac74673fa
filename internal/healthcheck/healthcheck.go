package healthcheck

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-trace-slicer/internal/config"
	"github.com/l3aro/go-trace-slicer/pkg/cache"
	"github.com/l3aro/go-trace-slicer/pkg/store"
)

// ComponentStatus represents the health status of one part of the setup.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "missing", "disabled", "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Toolchain      ComponentStatus
	Store          ComponentStatus
	Cache          ComponentStatus
}

// HasError reports whether any component failed.
func (r *HealthCheckResult) HasError() bool {
	return r.Toolchain.Status == "error" || r.Store.Status == "error" || r.Cache.Status == "error"
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Toolchain = checkToolchain()
	result.Store = checkStore(cfg)
	result.Cache = checkCache(cfg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gts")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkToolchain looks for the go command, which package loading shells out to.
func checkToolchain() ComponentStatus {
	status := ComponentStatus{Name: "go toolchain"}
	path, err := exec.LookPath("go")
	if err != nil {
		status.Status = "error"
		status.Error = "go command not found in PATH"
		return status
	}
	status.Detail = path
	status.Status = "ready"
	return status
}

// checkStore verifies that the trace database manifest can be read.
func checkStore(cfg *config.Config) ComponentStatus {
	st := store.New(cfg.OutputDir)
	status := ComponentStatus{Name: "trace store", Detail: st.Root}

	info, err := os.Stat(st.Root)
	if os.IsNotExist(err) {
		status.Status = "missing"
		return status
	}
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	if !info.IsDir() {
		status.Status = "error"
		status.Error = "output_dir is not a directory"
		return status
	}

	slices, err := st.LoadManifest()
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	traces := 0
	for _, sl := range slices {
		traces += sl.Traces()
	}
	status.Detail = fmt.Sprintf("%s (%d slices, %d traces)", st.Root, len(slices), traces)
	status.Status = "ready"
	return status
}

// checkCache verifies that the graph cache file decodes.
func checkCache(cfg *config.Config) ComponentStatus {
	st := store.New(cfg.OutputDir)
	status := ComponentStatus{Name: "graph cache", Detail: st.CachePath()}
	if !cfg.CacheEnabled {
		status.Status = "disabled"
		return status
	}

	if _, err := os.Stat(st.CachePath()); os.IsNotExist(err) {
		status.Status = "missing"
		return status
	}

	c := cache.New(cfg.CacheSize)
	if err := c.LoadFile(st.CachePath()); err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	status.Detail = fmt.Sprintf("%s (%d entries)", st.CachePath(), c.Len())
	status.Status = "ready"
	return status
}
