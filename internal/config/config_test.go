package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, `
adapter: hci1
scan_seconds: 10
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration())
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.FindTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 2, cfg.ConnectRetries)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaultsWhenNoFileExists(t *testing.T) {
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative scan window", "scan_seconds: -1"},
		{"zero poll interval", "poll_interval_ms: 0"},
		{"empty adapter", `adapter: ""`},
		{"bad log level", "log_level: loud"},
		{"malformed yaml", "adapter: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}
