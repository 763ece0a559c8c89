// Package config holds process configuration: 12-factor environment
// settings, OCR/extraction processing profiles with range validation, and
// per-portal source profiles loaded from YAML.
package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration.
type Config struct {
	LogLevel string

	// DatabaseURL selects the Postgres audit store; when empty the
	// embedded SQLite store at SQLitePath is used instead.
	DatabaseURL string
	SQLitePath  string

	// RedisAddr enables the shared duplicate tracker; empty keeps it
	// in-process.
	RedisAddr string

	DataDir         string
	ProfilesDir     string
	HolidayCalendar string
	AuditLogPath    string

	ExportSigningKey  string
	ExportTokenSecret string

	SLADefaultWindowDays    int
	SLAEarlyWarningFraction float64
	SLACriticalFraction     float64
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:                envStr("LOG_LEVEL", "INFO"),
		DatabaseURL:             envStr("DATABASE_URL", ""),
		SQLitePath:              envStr("SQLITE_PATH", "./data/oficios.db"),
		RedisAddr:               envStr("REDIS_ADDR", ""),
		DataDir:                 envStr("DATA_DIR", "./data"),
		ProfilesDir:             envStr("PROFILES_DIR", "./profiles"),
		HolidayCalendar:         envStr("HOLIDAY_CALENDAR", ""),
		AuditLogPath:            envStr("AUDIT_LOG_PATH", ""),
		ExportSigningKey:        envStr("EXPORT_SIGNING_KEY", ""),
		ExportTokenSecret:       envStr("EXPORT_TOKEN_SECRET", ""),
		SLADefaultWindowDays:    envInt("SLA_DEFAULT_WINDOW_DAYS", 10),
		SLAEarlyWarningFraction: envFloat("SLA_EARLY_WARNING_FRACTION", 0.33),
		SLACriticalFraction:     envFloat("SLA_CRITICAL_FRACTION", 0.10),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
