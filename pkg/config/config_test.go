package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-compliance/oficios/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("SLA_DEFAULT_WINDOW_DAYS", "")
	t.Setenv("SLA_EARLY_WARNING_FRACTION", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "./data/oficios.db", cfg.SQLitePath)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 10, cfg.SLADefaultWindowDays)
	assert.InDelta(t, 0.33, cfg.SLAEarlyWarningFraction, 1e-9)
	assert.InDelta(t, 0.10, cfg.SLACriticalFraction, 1e-9)
}

// TestLoad_Overrides verifies that environment variables override the
// defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://audit:5432/oficios")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SLA_DEFAULT_WINDOW_DAYS", "5")
	t.Setenv("SLA_CRITICAL_FRACTION", "0.2")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://audit:5432/oficios", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 5, cfg.SLADefaultWindowDays)
	assert.InDelta(t, 0.2, cfg.SLACriticalFraction, 1e-9)
}

// TestLoad_BadNumbersFallBack verifies that unparseable numeric values
// fall back to defaults instead of failing startup.
func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("SLA_DEFAULT_WINDOW_DAYS", "soon")
	t.Setenv("SLA_EARLY_WARNING_FRACTION", "a third")

	cfg := config.Load()

	assert.Equal(t, 10, cfg.SLADefaultWindowDays)
	assert.InDelta(t, 0.33, cfg.SLAEarlyWarningFraction, 1e-9)
}
