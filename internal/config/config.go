// Package config loads the optional .noopcheck configuration file.
//
// The file is YAML (.noopcheck) or TOML (.noopcheck.toml) and is found by
// walking upward from the directory of the file being checked. All fields
// are optional; accessor methods supply the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/deixis/noopcheck/internal/opcache"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order of preference.
const (
	YAMLFile = ".noopcheck"
	TOMLFile = ".noopcheck.toml"
)

// Default values for runner configuration.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 16 << 20 // 16 MB
	DefaultExtension = "auto"
)

// DefaultExclude lists functions never compared: opcache's name for
// file-scope code.
var DefaultExclude = []string{opcache.MainFunction}

// Config holds the parsed configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version       int         `yaml:"version" toml:"version"`
	PHP           string      `yaml:"php" toml:"php"`                       // php binary; default $PHP_BINARY or php on PATH
	RawTimeout    string      `yaml:"timeout" toml:"timeout"`               // e.g. "5m", "30s"
	RawMaxOutput  int         `yaml:"max_output" toml:"max_output"`         // bytes per dump
	Concurrent    bool        `yaml:"concurrent" toml:"concurrent"`         // run both dumps at once
	Extension     string      `yaml:"extension" toml:"extension"`           // auto, always, never
	ExtensionName string      `yaml:"extension_name" toml:"extension_name"` // e.g. opcache.so
	Args          []string    `yaml:"args" toml:"args"`                     // extra php flags
	Exclude       []string    `yaml:"exclude" toml:"exclude"`               // function names to skip
	Unoptimized   LevelConfig `yaml:"unoptimized" toml:"unoptimized"`
	Optimized     LevelConfig `yaml:"optimized" toml:"optimized"`
}

// LevelConfig overrides the opcache ini values for one of the two dumps.
type LevelConfig struct {
	DebugLevel        string `yaml:"debug_level" toml:"debug_level"`               // opcache.opt_debug_level
	OptimizationLevel string `yaml:"optimization_level" toml:"optimization_level"` // opcache.optimization_level
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ExtensionMode returns the configured extension mode or the default.
func (c *Config) ExtensionMode() string {
	if c.Extension != "" {
		return c.Extension
	}
	return DefaultExtension
}

// ExcludedFunctions returns the configured exclusions, falling back to defaults.
func (c *Config) ExcludedFunctions() []string {
	if len(c.Exclude) > 0 {
		return c.Exclude
	}
	return DefaultExclude
}

// Validate reports configuration values that can never work.
func (c *Config) Validate() error {
	switch c.ExtensionMode() {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("extension: unknown mode %q (want auto, always or never)", c.Extension)
	}
	if c.RawTimeout != "" {
		if _, err := time.ParseDuration(c.RawTimeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}

// LoadResult holds the parsed config and where it came from.
type LoadResult struct {
	Config *Config
	Path   string // file the config was read from; empty when defaulted
}

// Load searches dir and its parents for a configuration file. If none
// exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := find(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// LoadFile parses a single configuration file. The format is chosen by
// extension: .toml is TOML, anything else YAML.
func LoadFile(path string) (*Config, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	cfg := &Config{}
	if filepath.Ext(path) == ".toml" {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// find walks upward from dir looking for a configuration file.
func find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range []string{YAMLFile, TOMLFile} {
			path := filepath.Join(dir, name)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", YAMLFile)
		}
		dir = parent
	}
}
