// Package config provides project configuration for the edgekit CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the project config file looked up in the working
// directory when --config is not given.
const DefaultFileName = "edgekit.yaml"

// Config is the project configuration file. Every field is optional; flags
// always take precedence over file values.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version,omitempty"`

	// Name of the project, informational only
	Name string `yaml:"name,omitempty"`

	// Build holds defaults for the build commands
	Build BuildConfig `yaml:"build,omitempty"`
}

// BuildConfig holds per-project build defaults.
type BuildConfig struct {
	// OutputDirectory is the default --build-output-directory
	OutputDirectory string `yaml:"build_output_directory,omitempty"`

	// Outfile is the default --outfile
	Outfile string `yaml:"outfile,omitempty"`

	// WorkerBundle is the default for --experimental-worker-bundle
	WorkerBundle bool `yaml:"worker_bundle,omitempty"`

	// CompatibilityFlags are appended to any --compatibility-flag values
	CompatibilityFlags []string `yaml:"compatibility_flags,omitempty"`
}

// Load reads the project config at path. A missing file is not an error; it
// yields an empty config so the CLI works without one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}
