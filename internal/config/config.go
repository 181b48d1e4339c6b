// Package config loads the gitmeta configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultCacheSize     = 16
	DefaultWatchDebounce = 350 * time.Millisecond

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Duration is a time.Duration written as "350ms" or "2s" in the file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type HooksConfig struct {
	// Timeout bounds every hook run; zero means no limit.
	Timeout Duration `toml:"timeout"`
}

type Config struct {
	GitPath       string      `toml:"git_path"`
	CacheSize     int         `toml:"cache_size"`
	WatchDebounce Duration    `toml:"watch_debounce"`
	LogFormat     string      `toml:"log_format"` // "text", "json" or empty for auto
	Hooks         HooksConfig `toml:"hooks"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		GitPath:       "git",
		CacheSize:     DefaultCacheSize,
		WatchDebounce: Duration{DefaultWatchDebounce},
	}
}

// Path returns ~/.config/gitmeta/config.toml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gitmeta", "config.toml"), nil
}

// Load reads the default config file.
// Returns Default() if the file doesn't exist (no error).
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Keys missing from the file keep their
// default values. Returns an error only if the file exists but is invalid.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Default(), fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.GitPath == "" {
		return fmt.Errorf("git_path must not be empty")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("invalid cache_size %d: must be positive", c.CacheSize)
	}
	if c.WatchDebounce.Duration < 0 {
		return fmt.Errorf("invalid watch_debounce %s: must not be negative", c.WatchDebounce)
	}
	if c.Hooks.Timeout.Duration < 0 {
		return fmt.Errorf("invalid hooks.timeout %s: must not be negative", c.Hooks.Timeout)
	}
	switch c.LogFormat {
	case "", LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log_format %q: must be %q or %q", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	return nil
}
