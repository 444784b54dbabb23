package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "kgas.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 2, cfg.Anthropic.MaxAttempts)
	assert.Equal(t, 5, cfg.Anthropic.FailureThreshold)

	assert.InDelta(t, 0.4, cfg.Quality.InherentWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Quality.ProvenanceWeight, 1e-9)
	assert.InDelta(t, 0.8, cfg.Quality.HighThreshold, 1e-9)
	assert.InDelta(t, 0.95, cfg.Quality.OperationFactors["merge_operation"], 1e-9)

	assert.InDelta(t, 2.0, cfg.Bayesian.LogOddsScale, 1e-9)
	assert.InDelta(t, 3.0, cfg.Bayesian.MaxLogOddsShift, 1e-9)

	assert.Equal(t, 5, cfg.Calibration.MaxIterations)
	assert.InDelta(t, 0.15, cfg.Calibration.ConvergenceThreshold, 1e-9)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/kgas
log:
  level: debug
  format: console
quality:
  high_threshold: 0.9
calibration:
  max_iterations: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/kgas", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 0.9, cfg.Quality.HighThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Calibration.MaxIterations)

	// Unset sections still get defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.3, cfg.Calibration.Rate, 1e-9)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KGAS_STORE_DRIVER", "memory")
	t.Setenv("KGAS_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
