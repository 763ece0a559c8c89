// Package ingestion runs the first pipeline stage: drive a browser to a
// source portal, enumerate candidate documents by pattern, download each
// candidate, skip content already seen, persist bytes and metadata, and
// publish a DocumentDownloaded event per stored file. One correlation ID
// spans the whole run and the browser is always closed on exit.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/browser"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/storage"
	"github.com/meridian-compliance/oficios/pkg/store"
)

// Result is the outcome value of one ingestion run. Files holds the newly
// stored documents in candidate order; it may be shorter than the candidate
// list when duplicates were skipped or individual downloads failed.
type Result struct {
	Files      []contracts.FileMetadata `json:"files"`
	Duplicates int                      `json:"duplicates"`
	Failures   int                      `json:"failures"`
}

// Stage drives one ingestion run per Ingest call. Every run gets a fresh
// browser from the factory; sessions are never shared between runs.
type Stage struct {
	newBrowser func() browser.Automation
	blobs      storage.Store
	files      store.FileMetadataStore
	tracker    DownloadTracker
	recorder   *audit.Recorder
	bus        events.Publisher
	limiter    *rate.Limiter
	cfg        config.ProcessingConfig
	log        *slog.Logger
	clock      func() time.Time
}

// NewStage wires an ingestion stage with an in-process duplicate tracker
// and no event subscribers. Use the With options to swap those in.
func NewStage(newBrowser func() browser.Automation, blobs storage.Store, files store.FileMetadataStore, recorder *audit.Recorder, cfg config.ProcessingConfig, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	return &Stage{
		newBrowser: newBrowser,
		blobs:      blobs,
		files:      files,
		tracker:    NewMemoryTracker(0),
		recorder:   recorder,
		bus:        events.Nop{},
		cfg:        cfg,
		log:        log.With("component", "ingestion"),
		clock:      time.Now,
	}
}

// WithTracker replaces the duplicate tracker.
func (s *Stage) WithTracker(t DownloadTracker) *Stage {
	s.tracker = t
	return s
}

// WithPublisher replaces the event publisher.
func (s *Stage) WithPublisher(p events.Publisher) *Stage {
	s.bus = p
	return s
}

// WithLimiter sets a polite download rate limiter shared by the run's
// workers.
func (s *Stage) WithLimiter(l *rate.Limiter) *Stage {
	s.limiter = l
	return s
}

// WithClock overrides the timestamp source. For tests.
func (s *Stage) WithClock(clock func() time.Time) *Stage {
	s.clock = clock
	return s
}

// Ingest downloads every document on websiteURL matching patterns.
func (s *Stage) Ingest(ctx context.Context, websiteURL string, patterns []string) outcome.Outcome[Result] {
	if out, done := outcome.Guard[Result](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[Result] {
		return s.ingest(ctx, websiteURL, patterns)
	})
}

func (s *Stage) ingest(ctx context.Context, websiteURL string, patterns []string) outcome.Outcome[Result] {
	if err := validateRequest(websiteURL, patterns); err != nil {
		s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", false,
			audit.Details(map[string]any{"step": "validate", "url": websiteURL}), err.Error())
		return outcome.Failure[Result](err)
	}

	br := s.newBrowser()
	defer func() {
		if err := br.Close(); err != nil {
			s.log.Warn("browser close failed", "error", err)
		}
	}()

	if err := br.Launch(ctx); err != nil {
		return s.fail(ctx, "launch_browser", websiteURL, err)
	}
	s.step(ctx, "launch_browser", map[string]any{"url": websiteURL})

	if err := br.Navigate(ctx, websiteURL); err != nil {
		return s.fail(ctx, "navigate", websiteURL, err)
	}
	s.step(ctx, "navigate", map[string]any{"url": websiteURL})

	cands, err := br.IdentifyDownloadable(ctx, patterns)
	if err != nil {
		return s.fail(ctx, "identify_downloadable", websiteURL, err)
	}
	s.step(ctx, "identify_downloadable", map[string]any{
		"url":        websiteURL,
		"patterns":   patterns,
		"candidates": len(cands),
	})

	n := len(cands)
	results := make([]fileResult, n)
	workers := s.cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, c := range cands {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, c contracts.DownloadableFile) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.processCandidate(ctx, br, c)
		}(i, c)
	}
	wg.Wait()

	var res Result
	done := 0
	for _, r := range results {
		switch {
		case r.stored:
			res.Files = append(res.Files, r.meta)
			done++
		case r.duplicate:
			res.Duplicates++
			done++
		case r.failed:
			res.Failures++
			done++
		}
	}
	if ctx.Err() != nil && done < n {
		s.log.Warn("ingestion cancelled", "url", websiteURL, "done", done, "total", n)
		return outcome.Partial(res, done, n, fmt.Sprintf("cancelled after %d/%d", done, n))
	}

	s.log.Info("ingestion complete",
		"url", websiteURL,
		"stored", len(res.Files),
		"duplicates", res.Duplicates,
		"failures", res.Failures)
	return outcome.Success(res)
}

// fileResult is one candidate's terminal state. The zero value means the
// candidate was not processed before cancellation.
type fileResult struct {
	meta      contracts.FileMetadata
	stored    bool
	duplicate bool
	failed    bool
}

func (s *Stage) processCandidate(ctx context.Context, br browser.Automation, c contracts.DownloadableFile) fileResult {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return fileResult{}
			}
			s.log.Warn("rate limiter rejected download", "url", c.URL, "error", err)
			return fileResult{failed: true}
		}
	}

	df, err := br.Download(ctx, c.URL)
	if err != nil {
		if ctx.Err() != nil {
			return fileResult{}
		}
		s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", false,
			audit.Details(map[string]any{"step": "download_file", "url": c.URL}), err.Error())
		s.log.Warn("download failed", "url", c.URL, "error", err)
		return fileResult{failed: true}
	}
	s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", true,
		audit.Details(map[string]any{
			"step":      "download_file",
			"url":       c.URL,
			"file_name": df.FileName,
			"size":      df.Size,
		}), "")

	sum := sha256.Sum256(df.Bytes)
	checksum := hex.EncodeToString(sum[:])

	first, err := s.tracker.Mark(ctx, ChecksumKey(checksum))
	if err != nil {
		// Tracker outage: fall through, the metadata store still
		// enforces checksum uniqueness.
		s.log.Warn("download tracker unavailable", "url", c.URL, "error", err)
		first = true
	}
	if !first {
		return s.skipDuplicate(ctx, c, checksum)
	}

	format := df.Format
	if format == contracts.FormatUnknown {
		format = c.Format
	}

	token, err := s.blobs.Save(ctx, df.Bytes, format)
	if err != nil {
		_ = s.tracker.Forget(ctx, ChecksumKey(checksum))
		if ctx.Err() != nil {
			return fileResult{}
		}
		s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", false,
			audit.Details(map[string]any{"step": "save_file", "url": c.URL}), err.Error())
		s.log.Warn("save failed", "url", c.URL, "error", err)
		return fileResult{failed: true}
	}

	fm := contracts.FileMetadata{
		FileID:            uuid.New().String(),
		FileName:          df.FileName,
		FilePath:          token,
		SourceURL:         c.URL,
		DownloadTimestamp: s.clock().UTC(),
		Checksum:          checksum,
		FileSizeBytes:     df.Size,
		Format:            format,
	}

	metaErr := s.files.Save(ctx, fm)
	if errors.Is(metaErr, store.ErrDuplicateChecksum) {
		// The tracker missed a document the durable store already holds.
		// Roll the blob back and skip; the tracker keeps the claim since
		// the content really has been seen.
		_ = s.blobs.Delete(ctx, token)
		return s.skipDuplicate(ctx, c, checksum)
	}

	s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, fm.FileID, true,
		audit.Details(map[string]any{
			"step":     "save_file",
			"url":      c.URL,
			"checksum": checksum,
			"path":     token,
			"format":   format,
		}), "")

	if metaErr != nil {
		// Metadata logging is non-fatal; the stored bytes stand.
		s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, fm.FileID, false,
			audit.Details(map[string]any{"step": "log_file_metadata"}), metaErr.Error())
		s.log.Warn("file metadata not persisted", "file_id", fm.FileID, "error", metaErr)
	} else {
		s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, fm.FileID, true,
			audit.Details(map[string]any{"step": "log_file_metadata", "file_name": fm.FileName}), "")
	}

	s.bus.Publish(ctx, events.Event{
		Type:               events.TypeDocumentDownloaded,
		DocumentDownloaded: &events.DocumentDownloaded{File: fm},
	})

	s.log.Info("document ingested",
		"file_id", fm.FileID,
		"file_name", fm.FileName,
		"size", fm.FileSizeBytes,
		"format", fm.Format)
	return fileResult{meta: fm, stored: true}
}

// skipDuplicate audits the skip as a success. This is the only ingestion
// record whose details carry the checksum on the duplicate path.
func (s *Stage) skipDuplicate(ctx context.Context, c contracts.DownloadableFile, checksum string) fileResult {
	details := map[string]any{
		"step":     "duplicate_skip",
		"url":      c.URL,
		"checksum": checksum,
	}
	fileID := ""
	if existing, err := s.files.GetByChecksum(ctx, checksum); err == nil {
		fileID = existing.FileID
		details["duplicate_of"] = existing.FileID
	}
	s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, fileID, true,
		audit.Details(details), "")
	s.log.Info("duplicate skipped", "url", c.URL, "checksum", checksum)
	return fileResult{duplicate: true}
}

// fail audits a failed run-level step. Caller cancellation surfaces as
// Cancelled with no failure record; the work simply stopped.
func (s *Stage) fail(ctx context.Context, step, websiteURL string, err error) outcome.Outcome[Result] {
	if out := outcome.FromErr[Result](err); out.IsCancelled() {
		return out
	}
	s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", false,
		audit.Details(map[string]any{"step": step, "url": websiteURL}), err.Error())
	s.log.Warn("ingestion step failed", "step", step, "url", websiteURL, "error", err)
	return outcome.Failure[Result](err)
}

func (s *Stage) step(ctx context.Context, step string, details map[string]any) {
	details["step"] = step
	s.recorder.Record(ctx, audit.ActionDownload, audit.StageIngestion, "", true,
		audit.Details(details), "")
}

func validateRequest(websiteURL string, patterns []string) error {
	u, err := url.Parse(websiteURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", websiteURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be http or https: %q", websiteURL)
	}
	if len(patterns) == 0 {
		return errors.New("at least one file pattern is required")
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return errors.New("file patterns must not be blank")
		}
	}
	return nil
}
