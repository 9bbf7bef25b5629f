package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves the test into an empty dir so no stray config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.census.gov/data", cfg.Census.BaseURL)
	assert.Equal(t, 30, cfg.Census.TimeoutSecs)
	assert.Equal(t, 3, cfg.Census.MaxRetries)
	assert.Equal(t, "catalog.db", cfg.Catalog.CachePath)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Census.APIKey)
	assert.Empty(t, cfg.Store.DatabaseURL)
	assert.Empty(t, cfg.Boundary.ShapefilePath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
census:
  api_key: test-key
  timeout_secs: 10
catalog:
  cache_path: /var/cache/acs/catalog.db
pipeline:
  concurrency: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Census.APIKey)
	assert.Equal(t, 10, cfg.Census.TimeoutSecs)
	assert.Equal(t, "/var/cache/acs/catalog.db", cfg.Catalog.CachePath)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "https://api.census.gov/data", cfg.Census.BaseURL)
	assert.Equal(t, 3, cfg.Census.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
census:
  api_key: file-key
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ACS_CENSUS_API_KEY", "env-key")
	t.Setenv("ACS_PIPELINE_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Census.APIKey)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("census: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
