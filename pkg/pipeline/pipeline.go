// Package pipeline sequences the processing stages over a batch of
// regulator documents: ingest from the source site, extract and classify
// every stored file, assemble and decide the unified record, and export
// response artifacts for records that clear the review gate. Files are
// processed concurrently under a bounded pool; within one file the stages
// run strictly in order.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/export"
	"github.com/meridian-compliance/oficios/pkg/extraction"
	"github.com/meridian-compliance/oficios/pkg/fieldmatch"
	"github.com/meridian-compliance/oficios/pkg/health"
	"github.com/meridian-compliance/oficios/pkg/ingestion"
	"github.com/meridian-compliance/oficios/pkg/observability"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/sla"
	"github.com/meridian-compliance/oficios/pkg/storage"
)

// Ingestor runs the first stage against a source site.
type Ingestor interface {
	Ingest(ctx context.Context, websiteURL string, patterns []string) outcome.Outcome[ingestion.Result]
}

// Extractor runs the second stage over one stored file.
type Extractor interface {
	Process(ctx context.Context, file contracts.FileMetadata) outcome.Outcome[extraction.Result]
}

// Decider runs the third stage over an assembled record and gates it for
// manual review.
type Decider interface {
	ProcessDecisionLogic(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[contracts.UnifiedMetadataRecord]
	IdentifyReviewCases(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[[]contracts.ReviewCase]
}

// Exporter renders the response artifacts for one record.
type Exporter interface {
	ExportRegulatorXML(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, w io.Writer) outcome.Outcome[export.Receipt]
	GenerateExcelLayout(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, w io.Writer) outcome.Outcome[export.Receipt]
	ExportSignedPDFWithSummarization(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, originalPDF []byte, w io.Writer) outcome.Outcome[export.Receipt]
}

// FileStatus is the terminal disposition of one file's run.
type FileStatus string

// File dispositions.
const (
	StatusExported    FileStatus = "EXPORTED"
	StatusNeedsReview FileStatus = "NEEDS_REVIEW"
	StatusFailed      FileStatus = "FAILED"
	StatusCancelled   FileStatus = "CANCELLED"
)

// Artifact pairs an export receipt with the storage path holding the
// rendered bytes.
type Artifact struct {
	Receipt export.Receipt `json:"receipt"`
	Path    string         `json:"path"`
}

// FileReport summarizes one file's trip through extraction, decision and
// export.
type FileReport struct {
	FileID      string                        `json:"file_id"`
	FileName    string                        `json:"file_name"`
	Status      FileStatus                    `json:"status"`
	Level1      contracts.ClassificationLabel `json:"level1,omitempty"`
	Confidence  int                           `json:"confidence,omitempty"`
	ReviewCases int                           `json:"review_cases,omitempty"`
	Artifacts   []Artifact                    `json:"artifacts,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`
	Deadline    *sla.Status                   `json:"deadline,omitempty"`
	Error       string                        `json:"error,omitempty"`
}

// Summary aggregates one batch run.
type Summary struct {
	Downloaded     int           `json:"downloaded"`
	Duplicates     int           `json:"duplicates"`
	IngestFailures int           `json:"ingest_failures"`
	Exported       int           `json:"exported"`
	NeedsReview    int           `json:"needs_review"`
	Failed         int           `json:"failed"`
	Cancelled      int           `json:"cancelled"`
	Files          []FileReport  `json:"files"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Runner wires the four stages into one batch pipeline.
type Runner struct {
	ingestor  Ingestor
	extractor Extractor
	decider   Decider
	exporter  Exporter

	blobs     storage.Store
	matcher   *fieldmatch.Matcher
	calendar  fieldmatch.BusinessCalendar
	deadlines *sla.Tracker
	perf      *health.Tracker
	obs       *observability.Provider
	log       *slog.Logger
	clock     func() time.Time

	workers      int
	stageTimeout time.Duration
	signedPDF    bool
}

// NewRunner builds a runner over the four stage implementations. blobs is
// the store export artifacts land in; cfg supplies the worker pool bound
// and the per-stage time budget.
func NewRunner(ingestor Ingestor, extractor Extractor, decider Decider, exporter Exporter, blobs storage.Store, cfg config.ProcessingConfig, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.MaxConcurrency
	if workers <= 0 {
		workers = 1
	}
	var budget time.Duration
	if cfg.TimeoutSeconds > 0 {
		budget = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Runner{
		ingestor:     ingestor,
		extractor:    extractor,
		decider:      decider,
		exporter:     exporter,
		blobs:        blobs,
		matcher:      fieldmatch.NewMatcher(),
		log:          log.With("component", "pipeline"),
		clock:        time.Now,
		workers:      workers,
		stageTimeout: budget,
		signedPDF:    true,
	}
}

// WithMatcher replaces the field reconciliation matcher.
func (r *Runner) WithMatcher(m *fieldmatch.Matcher) *Runner {
	r.matcher = m
	return r
}

// WithCalendar sets the business calendar used for date derivation.
func (r *Runner) WithCalendar(cal fieldmatch.BusinessCalendar) *Runner {
	r.calendar = cal
	return r
}

// WithDeadlines enables response-deadline tracking for processed files.
func (r *Runner) WithDeadlines(t *sla.Tracker) *Runner {
	r.deadlines = t
	return r
}

// WithPerformance enables per-stage latency and confidence sampling.
func (r *Runner) WithPerformance(t *health.Tracker) *Runner {
	r.perf = t
	return r
}

// WithObservability enables spans and RED metrics around stage calls.
func (r *Runner) WithObservability(p *observability.Provider) *Runner {
	r.obs = p
	return r
}

// WithSignedPDF controls whether the signed PDF artifact is rendered.
// Disable it when no signing key is deployed.
func (r *Runner) WithSignedPDF(enabled bool) *Runner {
	r.signedPDF = enabled
	return r
}

// WithStageTimeout overrides the per-stage time budget from the config.
// Zero disables timeboxing.
func (r *Runner) WithStageTimeout(d time.Duration) *Runner {
	r.stageTimeout = d
	return r
}

// WithClock replaces the time source.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// Run executes one batch: ingest from websiteURL, then push every new file
// through extraction, decision logic and export under the worker pool.
// Per-file failures do not abort the batch; they surface as warnings on
// the summary. Cancellation mid-batch keeps the files already finished.
func (r *Runner) Run(ctx context.Context, websiteURL string, patterns []string) outcome.Outcome[Summary] {
	if out, done := outcome.Guard[Summary](ctx); done {
		return out
	}
	ctx, correlationID := audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[Summary] {
		return r.run(ctx, correlationID, websiteURL, patterns)
	})
}

func (r *Runner) run(ctx context.Context, correlationID, websiteURL string, patterns []string) outcome.Outcome[Summary] {
	started := r.clock()
	ctx, finish := r.track(ctx, "pipeline.run",
		observability.StageOperation("pipeline", "", correlationID)...)

	ingOut := timeboxed(ctx, r.stageTimeout, "ingestion", func(sctx context.Context) outcome.Outcome[ingestion.Result] {
		return r.ingestor.Ingest(sctx, websiteURL, patterns)
	})
	switch {
	case ingOut.IsCancelled():
		finish(context.Canceled)
		return outcome.Cancelled[Summary]()
	case ingOut.IsFailure():
		finish(ingOut.Err())
		return outcome.Failuref[Summary]("ingestion: %w", ingOut.Err())
	}
	ingested, _ := ingOut.Value()

	summary := Summary{
		Downloaded:     len(ingested.Files),
		Duplicates:     ingested.Duplicates,
		IngestFailures: ingested.Failures,
		Files:          make([]FileReport, len(ingested.Files)),
	}
	warnings := append([]string{}, ingOut.Warnings()...)

	var pool errgroup.Group
	pool.SetLimit(r.workers)
	for i, file := range ingested.Files {
		if ctx.Err() != nil {
			summary.Files[i] = FileReport{FileID: file.FileID, FileName: file.FileName, Status: StatusCancelled}
			continue
		}
		pool.Go(func() error {
			summary.Files[i] = r.reportFor(ctx, file)
			return nil
		})
	}
	_ = pool.Wait()

	var done int
	for _, fr := range summary.Files {
		switch fr.Status {
		case StatusExported:
			summary.Exported++
			done++
		case StatusNeedsReview:
			summary.NeedsReview++
			done++
		case StatusFailed:
			summary.Failed++
			done++
			warnings = append(warnings, fmt.Sprintf("file %s failed: %s", fr.FileID, fr.Error))
		case StatusCancelled:
			summary.Cancelled++
		}
	}
	summary.Elapsed = r.clock().Sub(started)

	r.log.Info("pipeline run complete",
		"downloaded", summary.Downloaded,
		"duplicates", summary.Duplicates,
		"exported", summary.Exported,
		"needs_review", summary.NeedsReview,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"elapsed", summary.Elapsed)

	if summary.Cancelled > 0 {
		finish(context.Canceled)
		if done == 0 {
			return outcome.Cancelled[Summary]()
		}
		return outcome.Partial(summary, done, len(summary.Files),
			fmt.Sprintf("cancelled after %d/%d files", done, len(summary.Files)))
	}
	finish(nil)
	if len(warnings) > 0 {
		total := len(summary.Files)
		if total == 0 {
			return outcome.Warned(summary, warnings, 1, 0)
		}
		confidence := float64(total-summary.Failed) / float64(total)
		return outcome.Warned(summary, warnings, confidence, 1-confidence)
	}
	return outcome.Success(summary)
}

// reportFor folds a ProcessFile outcome into the report slot for one file.
func (r *Runner) reportFor(ctx context.Context, file contracts.FileMetadata) FileReport {
	out := r.ProcessFile(ctx, file)
	switch {
	case out.IsCancelled():
		return FileReport{FileID: file.FileID, FileName: file.FileName, Status: StatusCancelled}
	case out.IsFailure():
		r.log.Warn("file processing failed", "file_id", file.FileID, "error", out.Err())
		return FileReport{FileID: file.FileID, FileName: file.FileName, Status: StatusFailed, Error: out.Err().Error()}
	}
	report, _ := out.Value()
	return report
}

// ProcessFile walks one stored file through extraction, record assembly,
// decision logic and export. A record that opens review cases stops before
// export; its report carries the case count. Warned stage outcomes carry
// their warnings onto the report.
func (r *Runner) ProcessFile(ctx context.Context, file contracts.FileMetadata) outcome.Outcome[FileReport] {
	if out, done := outcome.Guard[FileReport](ctx); done {
		return out
	}
	ctx, correlationID := audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[FileReport] {
		return r.processFile(ctx, correlationID, file)
	})
}

func (r *Runner) processFile(ctx context.Context, correlationID string, file contracts.FileMetadata) outcome.Outcome[FileReport] {
	ctx, finish := r.track(ctx, "pipeline.file",
		observability.StageOperation("file", file.FileID, correlationID)...)
	out := r.stages(ctx, file)
	finish(out.Err())
	return out
}

func (r *Runner) stages(ctx context.Context, file contracts.FileMetadata) outcome.Outcome[FileReport] {
	report := FileReport{FileID: file.FileID, FileName: file.FileName}

	extStart := r.clock()
	extOut := timeboxed(ctx, r.stageTimeout, "extraction", func(sctx context.Context) outcome.Outcome[extraction.Result] {
		return r.extractor.Process(sctx, file)
	})
	switch {
	case extOut.IsCancelled():
		return outcome.Cancelled[FileReport]()
	case extOut.IsFailure():
		return outcome.Failuref[FileReport]("extraction: %w", extOut.Err())
	}
	res, _ := extOut.Value()
	report.Level1 = res.Classification.Level1
	report.Confidence = res.Classification.Confidence
	report.Warnings = append(report.Warnings, extOut.Warnings()...)
	r.observe("extraction", r.clock().Sub(extStart), float64(res.Classification.Confidence)/100)

	record := BuildRecord(r.matcher, r.calendar, file, res)

	decStart := r.clock()
	decOut := timeboxed(ctx, r.stageTimeout, "decision logic", func(sctx context.Context) outcome.Outcome[contracts.UnifiedMetadataRecord] {
		return r.decider.ProcessDecisionLogic(sctx, file.FileID, record)
	})
	switch {
	case decOut.IsCancelled():
		return outcome.Cancelled[FileReport]()
	case decOut.IsFailure():
		return outcome.Failuref[FileReport]("decision logic: %w", decOut.Err())
	}
	record, _ = decOut.Value()
	report.Warnings = append(report.Warnings, decOut.Warnings()...)
	r.observe("decision_logic", r.clock().Sub(decStart), decOut.Confidence())

	if r.deadlines != nil && !record.Expediente.FechaRecepcion.IsZero() {
		status := r.deadlines.Track(ctx, file.FileID, record.Expediente.FechaRecepcion,
			slaWindowDays(record.AdditionalFields))
		report.Deadline = &status
	}

	revOut := r.decider.IdentifyReviewCases(ctx, file.FileID, record)
	switch {
	case revOut.IsCancelled():
		return outcome.Cancelled[FileReport]()
	case revOut.IsFailure():
		return outcome.Failuref[FileReport]("identify review cases: %w", revOut.Err())
	}
	cases, _ := revOut.Value()
	if len(cases) > 0 {
		report.Status = StatusNeedsReview
		report.ReviewCases = len(cases)
		return r.finishReport(report, decOut)
	}

	expStart := r.clock()
	expOut := timeboxed(ctx, r.stageTimeout, "export", func(sctx context.Context) outcome.Outcome[[]Artifact] {
		return r.export(sctx, file, res, record)
	})
	switch {
	case expOut.IsCancelled():
		return outcome.Cancelled[FileReport]()
	case expOut.IsFailure():
		return outcome.Failuref[FileReport]("export: %w", expOut.Err())
	}
	artifacts, _ := expOut.Value()
	report.Artifacts = artifacts
	report.Warnings = append(report.Warnings, expOut.Warnings()...)
	r.observe("export", r.clock().Sub(expStart), -1)

	report.Status = StatusExported
	return r.finishReport(report, decOut)
}

// finishReport carries a Warned decision outcome through to the file
// report so partial identity resolution stays visible to the caller.
func (r *Runner) finishReport(report FileReport, decOut outcome.Outcome[contracts.UnifiedMetadataRecord]) outcome.Outcome[FileReport] {
	if decOut.IsWarned() {
		return outcome.Warned(report, decOut.Warnings(), decOut.Confidence(), decOut.MissingDataRatio())
	}
	return outcome.Success(report)
}

// export renders every configured artifact for one record and saves the
// bytes to blob storage. The first failing artifact aborts the set.
func (r *Runner) export(ctx context.Context, file contracts.FileMetadata, res extraction.Result, record contracts.UnifiedMetadataRecord) outcome.Outcome[[]Artifact] {
	renders := []struct {
		format contracts.FileFormat
		run    func(io.Writer) outcome.Outcome[export.Receipt]
	}{
		{contracts.FormatXML, func(w io.Writer) outcome.Outcome[export.Receipt] {
			return r.exporter.ExportRegulatorXML(ctx, file.FileID, record, w)
		}},
		{contracts.FormatXML, func(w io.Writer) outcome.Outcome[export.Receipt] {
			return r.exporter.GenerateExcelLayout(ctx, file.FileID, record, w)
		}},
	}
	if r.signedPDF {
		original := r.originalPDF(ctx, res)
		renders = append(renders, struct {
			format contracts.FileFormat
			run    func(io.Writer) outcome.Outcome[export.Receipt]
		}{contracts.FormatPDF, func(w io.Writer) outcome.Outcome[export.Receipt] {
			return r.exporter.ExportSignedPDFWithSummarization(ctx, file.FileID, record, original, w)
		}})
	}

	artifacts := make([]Artifact, 0, len(renders))
	for _, rd := range renders {
		var buf bytes.Buffer
		recOut := rd.run(&buf)
		switch {
		case recOut.IsCancelled():
			return outcome.Cancelled[[]Artifact]()
		case recOut.IsFailure():
			return outcome.Failure[[]Artifact](recOut.Err())
		}
		receipt, _ := recOut.Value()

		path, err := r.blobs.Save(ctx, buf.Bytes(), rd.format)
		if err != nil {
			return outcome.FromErr[[]Artifact](fmt.Errorf("save %s artifact: %w", receipt.Kind, err))
		}
		artifacts = append(artifacts, Artifact{Receipt: receipt, Path: path})
	}
	return outcome.Success(artifacts)
}

// originalPDF fetches the source document bytes for summarization. Only
// PDF sources are fetched; a read failure degrades to an unsummarized
// export.
func (r *Runner) originalPDF(ctx context.Context, res extraction.Result) []byte {
	if res.Format != contracts.FormatPDF || res.OrganizedPath == "" {
		return nil
	}
	data, err := r.blobs.Read(ctx, res.OrganizedPath)
	if err != nil {
		r.log.Warn("original document unavailable for summarization",
			"file_id", res.FileID, "path", res.OrganizedPath, "error", err)
		return nil
	}
	return data
}

// timeboxed runs one stage call under the per-stage budget. A budget
// expiry surfaces as Failure("timeout ...") at this boundary; Cancelled is
// reserved for the caller's own cancellation.
func timeboxed[T any](ctx context.Context, budget time.Duration, stage string, call func(context.Context) outcome.Outcome[T]) outcome.Outcome[T] {
	if budget <= 0 {
		return call(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	out := call(sctx)
	if out.IsCancelled() && ctx.Err() == nil && sctx.Err() != nil {
		return outcome.Failuref[T]("timeout in %s stage after %s", stage, budget)
	}
	return out
}

func (r *Runner) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if r.obs == nil {
		return ctx, func(error) {}
	}
	return r.obs.TrackOperation(ctx, name, attrs...)
}

func (r *Runner) observe(operation string, latency time.Duration, confidence float64) {
	if r.perf == nil {
		return
	}
	r.perf.Observe(operation, latency, confidence)
}

// ExitCode maps a terminal outcome to the process exit status: 0 for
// Success and Warned, 130 for Cancelled, 1 for Failure.
func ExitCode[T any](out outcome.Outcome[T]) int {
	switch {
	case out.IsCancelled():
		return 130
	case out.IsFailure():
		return 1
	}
	return 0
}
