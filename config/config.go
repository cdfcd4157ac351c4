// Package config handles veld.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a veld.toml configuration file.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	Image   Image   `toml:"image"`

	// Dir is the directory containing the veld.toml file (set at load time).
	Dir string `toml:"-"`
}

// Runtime configures the execution engine.
type Runtime struct {
	StackLimit  int  `toml:"stack-limit"`
	PoolWorkers int  `toml:"pool-workers"`
	Debug       bool `toml:"debug"`
}

// Image configures the image store.
type Image struct {
	Store string `toml:"store"`
}

// Default returns the configuration used when no veld.toml is found.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			StackLimit:  16384,
			PoolWorkers: 4,
		},
		Image: Image{
			Store: ".veld/images.db",
		},
	}
}

// Load parses a veld.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "veld.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return cfg, nil
}

// FindAndLoad walks up from startDir to find a veld.toml file, then loads
// and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "veld.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the configured image store.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Image.Store) || c.Dir == "" {
		return c.Image.Store
	}
	return filepath.Join(c.Dir, c.Image.Store)
}
