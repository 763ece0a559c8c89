package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/health"
)

// runHealthCmd implements `oficios health`: one-shot probes over the
// runtime dependencies.
//
// Exit codes:
//
//	0 = healthy or degraded
//	1 = unhealthy
func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output the health report as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	log := newLogger(cfg.LogLevel, stderr)

	checks := []health.Check{
		health.TempFilesystemCheck(cfg.DataDir),
		health.RuntimeResourcesCheck(0, 0),
		health.OCRRuntimeCheck(""),
	}
	if check, closeDB := databaseCheck(cfg); check != nil {
		defer closeDB()
		checks = append(checks, check)
	}

	monitor := health.NewMonitor(log, checks...)
	report := monitor.GetCurrentHealth(context.Background())

	if jsonOutput {
		writeJSON(stdout, report)
	} else {
		_, _ = fmt.Fprintf(stdout, "Status: %s\n", report.Status)
		for _, c := range report.Components {
			line := fmt.Sprintf("  %-18s %s", c.Name, c.Status)
			if c.Detail != "" {
				line += "  " + c.Detail
			}
			_, _ = fmt.Fprintln(stdout, line)
		}
	}
	if report.Status == health.StatusUnhealthy {
		return 1
	}
	return 0
}

// databaseCheck probes whichever audit database the environment selects.
// A SQLite store that has never been created yet is not probed; first run
// creates it.
func databaseCheck(cfg *config.Config) (health.Check, func()) {
	driver, dsn := "sqlite", cfg.SQLitePath
	if cfg.DatabaseURL != "" {
		driver, dsn = "postgres", cfg.DatabaseURL
	} else if _, err := os.Stat(cfg.SQLitePath); err != nil {
		return nil, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil
	}
	return health.DependencyCheck("database", db.PingContext), func() { _ = db.Close() }
}

// runValidateConfigCmd implements `oficios validate-config`: schema-check
// and range-check a processing config document.
//
// Exit codes:
//
//	0 = document valid
//	1 = document rejected
//	2 = usage error
func runValidateConfigCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		file       string
		jsonOutput bool
	)
	cmd.StringVar(&file, "file", "", "Processing config document, YAML or JSON (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the validation result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := config.ValidateDocument(data); err != nil {
		if jsonOutput {
			writeJSON(stdout, config.ValidationResult{Errors: []string{err.Error()}})
		} else {
			_, _ = fmt.Fprintf(stderr, "Invalid: %v\n", err)
		}
		return 1
	}

	// Unstated keys keep their defaults, same as profile loading.
	pc := config.DefaultProcessingConfig()
	if err := yaml.Unmarshal(data, &pc); err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid: %v\n", err)
		return 1
	}
	res := pc.Validate()
	if jsonOutput {
		writeJSON(stdout, res)
	} else {
		for _, e := range res.Errors {
			_, _ = fmt.Fprintf(stderr, "Error: %s\n", e)
		}
		for _, w := range res.Warnings {
			_, _ = fmt.Fprintf(stderr, "Warning: %s\n", w)
		}
		if res.IsValid {
			_, _ = fmt.Fprintf(stdout, "%s: valid\n", file)
		} else {
			_, _ = fmt.Fprintf(stdout, "%s: invalid\n", file)
		}
	}
	if !res.IsValid {
		return 1
	}
	return 0
}
