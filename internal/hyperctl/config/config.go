// Package config manages hyperctl's own settings file, distinct from the
// boot config the loader reads at runtime: where to find a default disk
// image, the default config path inside it, and the build-cache directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the ~/.config/hyperctl/config.toml file.
type Config struct {
	DefaultImage  string `toml:"default_image,omitempty" json:"default_image"`
	DefaultConfig string `toml:"default_config,omitempty" json:"default_config"`
	CacheDir      string `toml:"cache_dir,omitempty" json:"cache_dir"`
}

var dirOverride string

// SetDir lets the CLI propagate --config-dir / HYPERCTL_HOME.
func SetDir(dir string) { dirOverride = dir }

// Dir returns the directory hyperctl's own config lives in.
// Precedence: SetDir > HYPERCTL_HOME env > ~/.config/hyperctl.
func Dir() string {
	if dirOverride != "" {
		return dirOverride
	}
	if v := os.Getenv("HYPERCTL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hyperctl")
	}
	return filepath.Join(home, ".config", "hyperctl")
}

// Path returns the full path to config.toml.
func Path() string { return filepath.Join(Dir(), "config.toml") }

// EnsureDir creates hyperctl's config directory if it does not exist.
func EnsureDir() error { return os.MkdirAll(Dir(), 0o755) }

// Load reads config.toml, returning a zero-value Config if it does not
// exist yet.
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("hyperctl: reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("hyperctl: parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to config.toml, creating the directory if needed.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("hyperctl: creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("hyperctl: marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}

// CacheDirOrDefault returns cfg.CacheDir if set, otherwise a subdirectory of
// the hyperctl config dir.
func (c *Config) CacheDirOrDefault() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(Dir(), "cache")
}
