// Package config loads aptgo's configuration with the same precedence chain
// the teacher used for .tk.json: defaults, then global user config, then
// project config, then CLI overrides, all expressed as hujson (JSON with
// comments and trailing commas) so operators can annotate their config files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("could not read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errStoreEmpty         = errors.New("store path must not be empty")
)

// Config holds all configuration options for the aptgo CLI.
type Config struct {
	StorePath string   `json:"store_path"` //nolint:tagliatelle // snake_case for config file
	Sources   []string `json:"sources,omitempty"`
	CacheDir  string   `json:"cache_dir,omitempty"` //nolint:tagliatelle
	LogLevel  string   `json:"log_level,omitempty"` //nolint:tagliatelle
}

// Sources tracks which config files were loaded, for diagnostics.
type Sources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".aptgo.hujson"

// Default returns the baseline configuration applied before any file or
// CLI override is considered.
func Default() Config {
	return Config{
		StorePath: "aptgo.struct",
		CacheDir:  filepath.Join(".", "var", "cache", "aptgo"),
		LogLevel:  "info",
	}
}

// globalConfigPath returns $XDG_CONFIG_HOME/aptgo/config.hujson, falling
// back to ~/.config/aptgo/config.hujson.
func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "aptgo", "config.hujson")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aptgo", "config.hujson")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "aptgo", "config.hujson")
	}

	return ""
}

// Load resolves configuration with the following precedence (highest wins):
//  1. Default()
//  2. global user config
//  3. project config (.aptgo.hujson in workDir, or configPath if given)
//  4. CLI overrides
func Load(workDir, configPath string, overrides Config, hasStoreOverride bool, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProject(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if hasStoreOverride {
		cfg.StorePath = overrides.StorePath
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	if len(overrides.Sources) > 0 {
		cfg.Sources = overrides.Sources
	}

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func loadGlobal(env []string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	var path string

	var mustExist bool

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		if _, err := os.Stat(path); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		path = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid hujson: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid json: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.StorePath != "" {
		base.StorePath = overlay.StorePath
	}

	if overlay.CacheDir != "" {
		base.CacheDir = overlay.CacheDir
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if len(overlay.Sources) > 0 {
		base.Sources = overlay.Sources
	}

	return base
}

func validate(cfg Config) error {
	if cfg.StorePath == "" {
		return errStoreEmpty
	}

	return nil
}

// Format returns cfg as indented JSON, for `aptgo store config`-style output.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
