// Package config handles bleuart configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bleuart settings. Flags override file values.
type Config struct {
	// Adapter is the logical adapter name matched by substring against
	// adapter descriptions.
	Adapter string `yaml:"adapter"`
	// ScanSeconds is the default scan window length.
	ScanSeconds int `yaml:"scan_seconds"`
	// FindTimeoutSeconds bounds discovery-by-address.
	FindTimeoutSeconds int `yaml:"find_timeout_seconds"`
	// PollIntervalMS is the interactive session input poll cadence.
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// ConnectRetries is how many failed connectivity checks are
	// retried after a connect. Negative disables retrying.
	ConnectRetries int `yaml:"connect_retries"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the built-in settings used when no config file is
// present.
func Default() Config {
	return Config{
		Adapter:            "hci0",
		ScanSeconds:        5,
		FindTimeoutSeconds: 30,
		PollIntervalMS:     100,
		ConnectRetries:     2,
		LogLevel:           "info",
	}
}

// DefaultSearchPaths returns the config file search order: ./bleuart.yaml,
// then ~/.config/bleuart/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"bleuart.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bleuart", "config.yaml"))
	}
	return paths
}

// Load reads configuration. If explicit is non-empty the file must
// exist and parse; otherwise the search paths are tried in order and
// the built-in defaults are returned when none exists.
func Load(explicit string) (Config, error) {
	if explicit != "" {
		return readFile(explicit)
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return readFile(p)
		}
	}
	return Default(), nil
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}
	if c.ScanSeconds <= 0 {
		return fmt.Errorf("scan_seconds must be positive, got %d", c.ScanSeconds)
	}
	if c.FindTimeoutSeconds <= 0 {
		return fmt.Errorf("find_timeout_seconds must be positive, got %d", c.FindTimeoutSeconds)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ScanDuration returns the scan window as a duration.
func (c Config) ScanDuration() time.Duration {
	return time.Duration(c.ScanSeconds) * time.Second
}

// FindTimeout returns the discovery-by-address bound as a duration.
func (c Config) FindTimeout() time.Duration {
	return time.Duration(c.FindTimeoutSeconds) * time.Second
}

// PollInterval returns the input poll cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
