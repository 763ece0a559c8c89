package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/pipeline"
	"github.com/meridian-compliance/oficios/pkg/reporting"
	"github.com/meridian-compliance/oficios/pkg/sla"
)

// runReportCmd implements `oficios report`: render the audit trail over a
// date window as CSV or JSON.
//
// Exit codes:
//
//	0 = report written
//	1 = report generation failed
//	2 = usage error
func runReportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("report", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		startStr string
		endStr   string
		format   string
		action   string
		user     string
		outPath  string
	)
	cmd.StringVar(&startStr, "start", "", "Window start date, YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&endStr, "end", "", "Window end date, YYYY-MM-DD inclusive (default today)")
	cmd.StringVar(&format, "format", "csv", "Report format: csv or json")
	cmd.StringVar(&action, "action", "", "Filter by action type (e.g. DOWNLOAD, EXPORT)")
	cmd.StringVar(&user, "user", "", "Filter by user ID")
	cmd.StringVar(&outPath, "out", "", "Write the report to a file instead of stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if startStr == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --start is required")
		cmd.Usage()
		return 2
	}
	if format != "csv" && format != "json" {
		_, _ = fmt.Fprintf(stderr, "Error: unknown format %q, want csv or json\n", format)
		return 2
	}

	start, err := parseDate(startStr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: bad --start: %v\n", err)
		return 2
	}
	end := time.Now().UTC()
	if endStr != "" {
		d, err := parseDate(endStr)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: bad --end: %v\n", err)
			return 2
		}
		// Inclusive end date: cover the whole day.
		end = d.AddDate(0, 0, 1)
	}

	ctx := context.Background()
	svc, err := buildServices(ctx, stderr, config.DefaultProcessingConfig())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer svc.Close()

	dest := stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer f.Close()
		dest = f
	}

	reporter := reporting.NewReporter(svc.auditLog, svc.log)
	q := reporting.Query{
		Start:      start,
		End:        end,
		ActionType: audit.ActionType(action),
		UserID:     user,
	}

	var out outcome.Outcome[int]
	if format == "json" {
		out = reporter.GenerateJSON(ctx, q, dest)
	} else {
		out = reporter.GenerateCSV(ctx, q, dest)
	}
	if count, ok := out.Value(); ok {
		_, _ = fmt.Fprintf(stderr, "Report complete: %d records\n", count)
	} else {
		printFailure(stderr, "report", out.Err(), out.IsCancelled())
	}
	return pipeline.ExitCode(out)
}

// runSLACmd implements `oficios sla`: compute the response deadline for an
// intake date under the business-day calendar.
func runSLACmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sla", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		intakeStr  string
		window     int
		asOfStr    string
		jsonOutput bool
	)
	cmd.StringVar(&intakeStr, "intake", "", "Intake date, YYYY-MM-DD (REQUIRED)")
	cmd.IntVar(&window, "window", 0, "Response window in business days (0 uses SLA_DEFAULT_WINDOW_DAYS)")
	cmd.StringVar(&asOfStr, "as-of", "", "Evaluate remaining days as of this date (default today)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the deadline status as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if intakeStr == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --intake is required")
		cmd.Usage()
		return 2
	}
	intake, err := parseDate(intakeStr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: bad --intake: %v\n", err)
		return 2
	}
	asOf := time.Now().UTC()
	if asOfStr != "" {
		if asOf, err = parseDate(asOfStr); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: bad --as-of: %v\n", err)
			return 2
		}
	}

	cfg := config.Load()
	cal, err := loadCalendar(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	tracker := sla.NewTracker(cal, sla.Config{
		DefaultWindowDays:    cfg.SLADefaultWindowDays,
		EarlyWarningFraction: cfg.SLAEarlyWarningFraction,
		CriticalFraction:     cfg.SLACriticalFraction,
	}, nil, nil).WithClock(func() time.Time { return asOf })

	status := tracker.Track(context.Background(), "deadline", intake, window)
	if jsonOutput {
		writeJSON(stdout, status)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Intake:    %s\n", status.IntakeDate.Format("2006-01-02"))
	_, _ = fmt.Fprintf(stdout, "Deadline:  %s\n", status.Deadline.Format("2006-01-02"))
	_, _ = fmt.Fprintf(stdout, "Remaining: %d business days\n", status.RemainingDays)
	_, _ = fmt.Fprintf(stdout, "Level:     %s\n", status.Level)
	return 0
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}
