// Package config handles loading and managing Scrutin configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for Scrutin.
type Config struct {
	Dashboard DashboardConfig `yaml:"dashboard"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// DashboardConfig controls the publication dashboard.
type DashboardConfig struct {
	PageSize             int  `yaml:"page_size" validate:"min=1,max=500"`
	ResetImportsOnCancel bool `yaml:"reset_imports_on_cancel"`
	LockTTLSeconds       int  `yaml:"lock_ttl_seconds" validate:"min=1"`
}

// IngestionConfig controls unit imports.
type IngestionConfig struct {
	MaxRows int `yaml:"max_rows" validate:"min=1"` // per batch
}

// ArchiveConfig controls where published snapshots are kept.
type ArchiveConfig struct {
	CacheSize int `yaml:"cache_size" validate:"min=0"`
}

// LockTTL returns the publication lock lease as a duration.
func (d DashboardConfig) LockTTL() time.Duration {
	return time.Duration(d.LockTTLSeconds) * time.Second
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			PageSize:             10,
			ResetImportsOnCancel: true,
			LockTTLSeconds:       30,
		},
		Ingestion: IngestionConfig{
			MaxRows: 50000,
		},
		Archive: ArchiveConfig{
			CacheSize: 64,
		},
	}
}

var validate = validator.New()

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FindConfigFile looks for .scrutin/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".scrutin", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// DataDir returns the per-user data directory used by the CLI when no
// archive location is given: ~/.local/share/scrutin.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "share", "scrutin")
}

// ArchiveDir returns the local snapshot archive directory.
func ArchiveDir() string {
	return filepath.Join(DataDir(), "archive")
}
