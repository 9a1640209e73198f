package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Connection.ConnectionTimeout)
	require.Equal(t, 5*time.Second, cfg.Connection.ResponseTimeout)
	require.True(t, cfg.Connection.AutoReconnect)
	require.Equal(t, []int{6666, 6667, 7000}, cfg.Scanner.Ports)
	require.Equal(t, "standard", cfg.Retry.Preset)
	require.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, ":9308", cfg.Metrics.ListenAddr)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "standard", cfg.Retry.Preset)
}

func TestLoad_FileOverridesFillGapsFromDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
connection:
  responseTimeout: 2s
retry:
  preset: aggressive
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden fields.
	require.Equal(t, 2*time.Second, cfg.Connection.ResponseTimeout)
	require.Equal(t, "aggressive", cfg.Retry.Preset)
	require.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields still come from defaults().
	require.Equal(t, 10*time.Second, cfg.Connection.ConnectionTimeout)
	require.Equal(t, []int{6666, 6667, 7000}, cfg.Scanner.Ports)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_RejectsInvalidRetryPreset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  preset: bogus\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsEmptyScannerPorts(t *testing.T) {
	cfg := defaults()
	cfg.Scanner.Ports = nil
	require.Error(t, validate(&cfg))
}

func TestValidate_RejectsUnknownRetryPreset(t *testing.T) {
	cfg := defaults()
	cfg.Retry.Preset = "bogus"
	require.Error(t, validate(&cfg))
}
