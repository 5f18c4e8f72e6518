// config.go - TOML configuration for the chatvault CLI.
//
// Configuration lives at ~/.chatvault/config.toml. Every field has a
// working default, so the file is optional and may be partial.

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/kittclouds/chatvault/pkg/highlight"
)

// Config holds the CLI configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Search   SearchConfig   `toml:"search"`
}

// DatabaseConfig controls how the conversation store is opened.
type DatabaseConfig struct {
	// Path to the SQLite file. Empty uses ~/.chatvault/chatvault.db.
	Path string `toml:"path"`
	// BusyTimeoutMS is how long a statement waits on a locked database.
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error or disabled.
	Level string `toml:"level"`
}

// SearchConfig tunes search result rendering.
type SearchConfig struct {
	// SnippetRadius is the bytes of context shown around a match.
	SnippetRadius int `toml:"snippet_radius"`
	// MaxResults caps how many conversations a search prints.
	MaxResults int `toml:"max_results"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			BusyTimeoutMS: 5000,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Search: SearchConfig{
			SnippetRadius: highlight.DefaultSnippetRadius,
			MaxResults:    20,
		},
	}
}

// ConfigDir returns the chatvault configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatvault"), nil
}

// ConfigPath returns the path of the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDatabasePath returns where the database lives when neither the
// config file nor the --db flag names one.
func DefaultDatabasePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatvault.db"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// LoadConfig reads the config file when present and fills the rest with
// defaults. A missing file is not an error.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	if err := LoadConfigFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile decodes a TOML config file over cfg.
func LoadConfigFile(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return nil
}

// SaveConfig writes cfg to the default config path.
func SaveConfig(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigFile(cfg, path)
}

// SaveConfigFile encodes cfg as TOML at path.
func SaveConfigFile(cfg *Config, path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# chatvault configuration file")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// fillDefaults replaces zero values with their defaults, so a partial
// config file behaves like the full one.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Database.BusyTimeoutMS <= 0 {
		c.Database.BusyTimeoutMS = def.Database.BusyTimeoutMS
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Search.SnippetRadius <= 0 {
		c.Search.SnippetRadius = def.Search.SnippetRadius
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = def.Search.MaxResults
	}
}
