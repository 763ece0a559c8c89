package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/pipeline"
	"github.com/meridian-compliance/oficios/pkg/sla"
)

// sourceFlags are the flags shared by the ingest and pipeline commands:
// which portal to pull from and under which processing profile.
type sourceFlags struct {
	url      string
	profile  string
	patterns string
	preset   string
}

func (f *sourceFlags) register(cmd *flag.FlagSet) {
	cmd.StringVar(&f.url, "url", "", "Portal URL to ingest from")
	cmd.StringVar(&f.profile, "profile", "", "Source profile code (reads profile_<code>.yaml)")
	cmd.StringVar(&f.patterns, "patterns", "", "Comma-separated file patterns (overrides the profile)")
	cmd.StringVar(&f.preset, "preset", "", "Processing preset: default, high-performance, conservative")
}

// runInputs are the resolved inputs for one ingestion or pipeline run.
type runInputs struct {
	url        string
	patterns   []string
	processing config.ProcessingConfig
	windowDays int
}

// resolve merges the source profile, preset and flag overrides. An
// explicit --preset beats the profile's processing block; --url and
// --patterns beat the profile's portal settings.
func (f *sourceFlags) resolve(workers, timeoutSec int) (runInputs, error) {
	in := runInputs{processing: config.DefaultProcessingConfig()}

	if f.profile != "" {
		profile, err := config.LoadProfile(config.Load().ProfilesDir, f.profile)
		if err != nil {
			return in, err
		}
		in.url = profile.PortalURL
		in.patterns = profile.FilePatterns
		in.windowDays = profile.SLAWindowDays
		in.processing = profile.Processing
	}
	if f.preset != "" {
		preset, err := config.Preset(f.preset)
		if err != nil {
			return in, err
		}
		in.processing = preset
	}
	if f.url != "" {
		in.url = f.url
	}
	if f.patterns != "" {
		in.patterns = splitPatterns(f.patterns)
	}
	if in.url == "" {
		return in, fmt.Errorf("either --url or --profile is required")
	}

	if workers > 0 {
		in.processing.MaxConcurrency = workers
	}
	if timeoutSec > 0 {
		in.processing.TimeoutSeconds = timeoutSec
	}

	res := in.processing.Validate()
	if !res.IsValid {
		return in, fmt.Errorf("processing config: %s", strings.Join(res.Errors, "; "))
	}
	in.processing = *res.ValidatedConfig
	return in, nil
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runPipelineCmd implements `oficios pipeline`: the full batch run from
// portal download through export.
//
// Exit codes:
//
//	0 = batch completed (possibly with warnings)
//	1 = batch failed
//	2 = usage error
//	130 = interrupted
func runPipelineCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var src sourceFlags
	src.register(cmd)
	var (
		workers    int
		timeoutSec int
		noPDF      bool
		jsonOutput bool
	)
	cmd.IntVar(&workers, "workers", 0, "Concurrent file workers (0 uses the processing config)")
	cmd.IntVar(&timeoutSec, "timeout", 0, "Per-stage time budget in seconds (0 uses the processing config)")
	cmd.BoolVar(&noPDF, "no-pdf", false, "Skip the signed PDF artifact")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the run summary as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	in, err := src.resolve(workers, timeoutSec)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, stderr, in.processing)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer svc.Close()

	if in.windowDays > 0 {
		svc.deadlines = sla.NewTracker(svc.calendar, sla.Config{
			DefaultWindowDays:    in.windowDays,
			EarlyWarningFraction: svc.cfg.SLAEarlyWarningFraction,
			CriticalFraction:     svc.cfg.SLACriticalFraction,
		}, svc.recorder, svc.bus)
	}

	runner := svc.runner()
	if noPDF {
		runner = runner.WithSignedPDF(false)
	}

	out := runner.Run(ctx, in.url, in.patterns)
	if jsonOutput {
		writeJSON(stdout, outcomeEnvelope(out))
	} else {
		printSummary(stdout, stderr, out)
	}
	return pipeline.ExitCode(out)
}

// runIngestCmd implements `oficios ingest`: stage one only, download and
// register new documents without extracting them.
func runIngestCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var src sourceFlags
	src.register(cmd)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output the ingestion result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	in, err := src.resolve(0, 0)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, stderr, in.processing)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer svc.Close()

	out := svc.ingest.Ingest(ctx, in.url, in.patterns)
	if jsonOutput {
		writeJSON(stdout, outcomeEnvelope(out))
	} else if res, ok := out.Value(); ok {
		_, _ = fmt.Fprintf(stdout, "Downloaded: %d  Duplicates: %d  Failures: %d\n",
			len(res.Files), res.Duplicates, res.Failures)
		for _, f := range res.Files {
			_, _ = fmt.Fprintf(stdout, "  %s  %s  (%s)\n", f.FileID, f.FileName, f.Format)
		}
		printWarnings(stderr, out.Warnings())
	} else {
		printFailure(stderr, "ingestion", out.Err(), out.IsCancelled())
	}
	return pipeline.ExitCode(out)
}

// runExtractCmd implements `oficios extract`: run stage two over one
// local document, bypassing the portal.
func runExtractCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("extract", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path       string
		preset     string
		jsonOutput bool
	)
	cmd.StringVar(&path, "path", "", "Local document to extract (REQUIRED)")
	cmd.StringVar(&preset, "preset", "", "Processing preset: default, high-performance, conservative")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the extraction result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --path is required")
		cmd.Usage()
		return 2
	}

	processing := config.DefaultProcessingConfig()
	if preset != "" {
		p, err := config.Preset(preset)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		processing = p
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, stderr, processing)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer svc.Close()

	file, err := stageLocalFile(ctx, svc, path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out := svc.extract.Process(ctx, file)
	if jsonOutput {
		writeJSON(stdout, outcomeEnvelope(out))
	} else if res, ok := out.Value(); ok {
		_, _ = fmt.Fprintf(stdout, "File: %s\n", file.FileName)
		_, _ = fmt.Fprintf(stdout, "Classification: %s (confidence %d)\n",
			res.Classification.Level1, res.Classification.Confidence)
		_, _ = fmt.Fprintf(stdout, "Organized at: %s\n", res.OrganizedPath)
		if res.Fields.Expediente != "" {
			_, _ = fmt.Fprintf(stdout, "Expediente: %s\n", res.Fields.Expediente)
		}
		_, _ = fmt.Fprintf(stdout, "Extracted fields: %d\n", len(res.Metadata.Fields))
		printWarnings(stderr, out.Warnings())
	} else {
		printFailure(stderr, "extraction", out.Err(), out.IsCancelled())
	}
	return pipeline.ExitCode(out)
}

// stageLocalFile copies a local document into blob storage and registers
// its metadata, so the extraction stage sees it exactly as a downloaded
// file.
func stageLocalFile(ctx context.Context, svc *services, path string) (contracts.FileMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.FileMetadata{}, err
	}
	token, err := svc.blobs.Save(ctx, data, formatOf(path))
	if err != nil {
		return contracts.FileMetadata{}, fmt.Errorf("stage document: %w", err)
	}
	sum := sha256.Sum256(data)

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	file := contracts.FileMetadata{
		FileID:            uuid.New().String(),
		FileName:          filepath.Base(path),
		FilePath:          token,
		SourceURL:         "file://" + abs,
		DownloadTimestamp: time.Now().UTC(),
		Checksum:          hex.EncodeToString(sum[:]),
		FileSizeBytes:     int64(len(data)),
		Format:            formatOf(path),
	}
	if err := svc.files.Save(ctx, file); err != nil {
		return contracts.FileMetadata{}, fmt.Errorf("register document: %w", err)
	}
	return file, nil
}

func formatOf(name string) contracts.FileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return contracts.FormatXML
	case ".docx":
		return contracts.FormatDOCX
	case ".pdf":
		return contracts.FormatPDF
	case ".zip":
		return contracts.FormatZIP
	default:
		return contracts.FormatUnknown
	}
}

// envelope is the JSON shape every subcommand emits under --json.
type envelope struct {
	Status   string   `json:"status"`
	Result   any      `json:"result,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func outcomeEnvelope[T any](out outcome.Outcome[T]) envelope {
	env := envelope{Status: string(out.State()), Warnings: out.Warnings()}
	if v, ok := out.Value(); ok {
		env.Result = v
	}
	if err := out.Err(); err != nil {
		env.Error = err.Error()
	}
	return env
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printSummary(stdout, stderr io.Writer, out outcome.Outcome[pipeline.Summary]) {
	summary, ok := out.Value()
	if !ok {
		printFailure(stderr, "pipeline", out.Err(), out.IsCancelled())
		return
	}
	_, _ = fmt.Fprintf(stdout, "Downloaded: %d  Duplicates: %d  Ingest failures: %d\n",
		summary.Downloaded, summary.Duplicates, summary.IngestFailures)
	_, _ = fmt.Fprintf(stdout, "Exported: %d  Needs review: %d  Failed: %d  Cancelled: %d\n",
		summary.Exported, summary.NeedsReview, summary.Failed, summary.Cancelled)
	for _, f := range summary.Files {
		line := fmt.Sprintf("  %s  %s  %s", f.FileID, f.FileName, f.Status)
		if len(f.Artifacts) > 0 {
			line += fmt.Sprintf("  (%d artifacts)", len(f.Artifacts))
		}
		if f.Error != "" {
			line += "  " + f.Error
		}
		_, _ = fmt.Fprintln(stdout, line)
	}
	_, _ = fmt.Fprintf(stdout, "Elapsed: %s\n", summary.Elapsed.Round(time.Millisecond))
	printWarnings(stderr, out.Warnings())
}

func printWarnings(stderr io.Writer, warnings []string) {
	for _, w := range warnings {
		_, _ = fmt.Fprintf(stderr, "Warning: %s\n", w)
	}
}

func printFailure(stderr io.Writer, what string, err error, cancelled bool) {
	if cancelled {
		_, _ = fmt.Fprintf(stderr, "%s cancelled\n", what)
		return
	}
	_, _ = fmt.Fprintf(stderr, "Error: %s failed: %v\n", what, err)
}
