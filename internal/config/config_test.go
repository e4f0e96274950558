package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_DefaultsAndValues(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://erp.example.org/
oauth:
  client_id: abc
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://erp.example.org", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout())
	assert.Equal(t, "abc", cfg.OAuth.ClientID)
	assert.Equal(t, "all", cfg.OAuth.Scope)
	assert.Equal(t, 10*time.Minute, cfg.OAuth.StateTTL())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Instrumentation.Enabled)
}

func TestLoadFile_HistoricEnvNames(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:8000")
	t.Setenv("CLIENT_SECRET", "s3cret")
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "s3cret", cfg.OAuth.ClientSecret)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadFile_RequiresBaseURL(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url")
}

func TestValidate_RejectsNonHTTP(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{BaseURL: "erp.example.org"}}
	assert.Error(t, cfg.Validate())
}
