package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/agentctl/internal/fleet"
	"github.com/danmuck/agentctl/internal/render"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")

	path := writeSettings(t, `
base_url = "https://letta.example.com"
api_key = "sk-file"
output = "wide"
timeout_ms = 1500
root_path = "fleet"
log_level = "debug"
ca_file = "certs/ca.pem"
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "https://letta.example.com", cfg.BaseURL)
	assert.Equal(t, "sk-file", cfg.APIKey)
	assert.Equal(t, render.FormatWide, cfg.Output)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "fleet"), cfg.RootPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "certs", "ca.pem"), cfg.CAFile)
}

func TestLoadOnlyOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")

	cfg, err := Load(writeSettings(t, `api_key = "sk-only"`+"\n"), true)
	require.NoError(t, err)
	def := DefaultSettings()
	assert.Equal(t, def.BaseURL, cfg.BaseURL)
	assert.Equal(t, def.Output, cfg.Output)
	assert.Equal(t, def.Timeout, cfg.Timeout)
	assert.Equal(t, "sk-only", cfg.APIKey)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvBaseURL, "http://env.example:8283")
	t.Setenv(EnvAPIKey, "sk-env")

	cfg, err := Load(writeSettings(t, `
base_url = "https://letta.example.com"
api_key = "sk-file"
`), true)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8283", cfg.BaseURL)
	assert.Equal(t, "sk-env", cfg.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")

	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), cfg)

	_, err = Load(missing, true)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")

	tests := []struct {
		name    string
		content string
	}{
		{"relative url", `base_url = "localhost:8283"`},
		{"bad scheme", `base_url = "ftp://letta.example.com"`},
		{"bad output", `output = "xml"`},
		{"zero timeout", `timeout_ms = 0`},
		{"bad log level", `log_level = "loud"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tc.content+"\n"), true)
			require.ErrorIs(t, err, ErrInvalidSettings)
		})
	}

	_, err := Load(writeSettings(t, "base_url = \n"), true)
	require.Error(t, err)
}

func TestWriteTemplate(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	require.NoError(t, WriteTemplate(path, TemplateSettings, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	err = WriteTemplate(path, TemplateSettings, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, WriteTemplate(path, TemplateSettings, true))

	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")
	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)

	_, err = Template("mirage")
	require.Error(t, err)
}

func TestFleetTemplateLoads(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, WriteTemplate(path, TemplateFleet, false))

	cfg, err := fleet.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, cfg.AgentNames())
	_, ok := cfg.SharedBlock("company")
	assert.True(t, ok)
}
