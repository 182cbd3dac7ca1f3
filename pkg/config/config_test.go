package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".wcbroker", "store"), cfg.Store.Dir)
	assert.Equal(t, "https://chainid.network/chains.json", cfg.Chains.DirectoryURL)
	assert.Equal(t, 5.0, cfg.Explorer.RateLimit)
	assert.Equal(t, 5, cfg.Explorer.Burst)
	assert.Equal(t, 2*time.Minute, cfg.Broker.ScanTimeout)
	assert.Equal(t, time.Duration(0), cfg.Broker.PromptTimeout)
	assert.Equal(t, 4*time.Second, cfg.RPC.ReceiptPollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Auth.URL)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "custom.toml")
	content := `
[store]
dir = "/var/lib/wcbroker"

[explorer]
rate_limit = 2.5
burst = 3
api_key = "file-key"

[broker]
scan_timeout = "30s"

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("WCBROKER_EXPLORER_API_KEY", "env-key")
	t.Setenv("WCBROKER_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/wcbroker", cfg.Store.Dir)
	assert.Equal(t, 2.5, cfg.Explorer.RateLimit)
	assert.Equal(t, 3, cfg.Explorer.Burst)
	assert.Equal(t, "env-key", cfg.Explorer.APIKey, "environment overrides the file")
	assert.Equal(t, 30*time.Second, cfg.Broker.ScanTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown log level", content: "[log]\nlevel = \"verbose\"\n"},
		{name: "unknown log format", content: "[log]\nformat = \"xml\"\n"},
		{name: "zero rate limit", content: "[explorer]\nrate_limit = 0.0\n"},
		{name: "bad auth url", content: "[auth]\nurl = \"not a url\"\n"},
		{name: "zero scan timeout", content: "[broker]\nscan_timeout = \"0s\"\n"},
		{name: "empty store dir", content: "[store]\ndir = \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			path := filepath.Join(home, "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := DefaultPath()
	require.NoError(t, err)
	require.NoError(t, WriteDefault(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[broker]")
	assert.Contains(t, string(data), "2m0s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Broker.ScanTimeout)
	assert.Equal(t, filepath.Join(home, ".wcbroker", "store"), cfg.Store.Dir)

	err = WriteDefault(path, false)
	assert.ErrorIs(t, err, ErrConfigExists)
	assert.NoError(t, WriteDefault(path, true))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LogConfig{Level: tt.level}.SlogLevel(), tt.level)
	}
}
