// Package extraction runs the second pipeline stage: identify a stored
// document's format, extract its metadata, classify it, derive a safe name
// and relocate it under the organized tree. Progress is a per-file state
// machine; every transition is audited and a failed transition is terminal
// for that file.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/storage"
)

// State tracks a file's progress through the stage.
type State string

// Extraction states, in transition order.
const (
	StateIdentified State = "IDENTIFIED"
	StateExtracted  State = "EXTRACTED"
	StateClassified State = "CLASSIFIED"
	StateNamed      State = "NAMED"
	StateMoved      State = "MOVED"
)

// Result is the extraction output for one file.
//
//nolint:govet // fieldalignment: ordered by pipeline progression
type Result struct {
	FileID         string                         `json:"file_id"`
	Format         contracts.FileFormat           `json:"format"`
	Metadata       contracts.ExtractedMetadata    `json:"metadata"`
	Fields         contracts.ExtractedFields      `json:"fields"`
	Classification contracts.ClassificationResult `json:"classification"`
	SafeName       string                         `json:"safe_name"`
	OrganizedPath  string                         `json:"organized_path"`
	State          State                          `json:"state"`
}

// Mover relocates a stored document under its classification.
type Mover interface {
	Move(ctx context.Context, storagePath string, cls contracts.ClassificationResult, safeName string) (string, error)
}

// StoreMover organizes documents inside a storage.Store under
// organized/<Level1>[/<Level2>]/<safeName>. A name collision appends a
// numeric suffix.
type StoreMover struct {
	store storage.Store
}

// NewStoreMover wraps store.
func NewStoreMover(store storage.Store) *StoreMover {
	return &StoreMover{store: store}
}

// Move relocates storagePath and returns the new token.
func (m *StoreMover) Move(ctx context.Context, storagePath string, cls contracts.ClassificationResult, safeName string) (string, error) {
	dir := path.Join("organized", string(cls.Level1))
	if cls.Level2 != "" {
		dir = path.Join(dir, cls.Level2)
	}

	ext := path.Ext(safeName)
	base := strings.TrimSuffix(safeName, ext)
	target := path.Join(dir, safeName)
	for n := 2; ; n++ {
		exists, err := m.store.Exists(ctx, target)
		if err != nil {
			return "", fmt.Errorf("probe move target: %w", err)
		}
		if !exists {
			break
		}
		target = path.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
	}
	return m.store.Move(ctx, storagePath, target)
}

// Stage drives the extraction state machine.
type Stage struct {
	identifier Identifier
	extractors map[contracts.FileFormat]Extractor
	classifier Classifier
	namer      Namer
	mover      Mover
	store      storage.Store
	recorder   *audit.Recorder
	log        *slog.Logger
	maxBytes   int64
}

// NewStage wires the default pipeline: magic-byte identification, the three
// format extractors, the keyword classifier and in-store organization.
// recognizer may be nil when no OCR engine is deployed.
func NewStage(store storage.Store, recorder *audit.Recorder, cfg config.ProcessingConfig, recognizer Recognizer, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	var maxBytes int64
	if cfg.MaxFileSizeMB > 0 {
		maxBytes = int64(cfg.MaxFileSizeMB) << 20
	}
	return &Stage{
		identifier: MagicIdentifier{},
		extractors: map[contracts.FileFormat]Extractor{
			contracts.FormatXML:  XMLExtractor{},
			contracts.FormatDOCX: DOCXExtractor{},
			contracts.FormatPDF:  NewPDFExtractor(recognizer, cfg, log),
		},
		classifier: NewKeywordClassifier(),
		namer:      SafeNamer{},
		mover:      NewStoreMover(store),
		store:      store,
		recorder:   recorder,
		log:        log.With("component", "extraction"),
		maxBytes:   maxBytes,
	}
}

// WithExtractor replaces the extractor for one format.
func (s *Stage) WithExtractor(format contracts.FileFormat, ex Extractor) *Stage {
	s.extractors[format] = ex
	return s
}

// WithClassifier replaces the classifier.
func (s *Stage) WithClassifier(c Classifier) *Stage {
	s.classifier = c
	return s
}

// Process runs the full state machine over one stored file.
func (s *Stage) Process(ctx context.Context, file contracts.FileMetadata) outcome.Outcome[Result] {
	if out, done := outcome.Guard[Result](ctx); done {
		return out
	}
	return outcome.Capture(func() outcome.Outcome[Result] {
		return s.process(ctx, file)
	})
}

func (s *Stage) process(ctx context.Context, file contracts.FileMetadata) outcome.Outcome[Result] {
	res := Result{FileID: file.FileID}

	data, err := s.store.Read(ctx, file.FilePath)
	if err != nil {
		return s.fail(ctx, file, audit.ActionExtraction, StateIdentified,
			fmt.Errorf("read document %s: %w", file.FileName, err))
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return s.fail(ctx, file, audit.ActionExtraction, StateIdentified,
			fmt.Errorf("document %s exceeds size limit (%d bytes)", file.FileName, len(data)))
	}

	format := s.identifier.Identify(data, file.FileName)
	if format == contracts.FormatUnknown {
		return s.fail(ctx, file, audit.ActionExtraction, StateIdentified,
			fmt.Errorf("unrecognized format for %s", file.FileName))
	}
	res.Format = format
	res.State = StateIdentified
	s.transition(ctx, file.FileID, audit.ActionExtraction, StateIdentified, map[string]any{
		"file_name": file.FileName,
		"format":    format,
	})

	if err := ctx.Err(); err != nil {
		return outcome.FromErr[Result](err)
	}
	extractor, ok := s.extractors[format]
	if !ok {
		return s.fail(ctx, file, audit.ActionExtraction, StateExtracted,
			fmt.Errorf("no extractor for format %s", format))
	}
	meta, err := extractor.Extract(ctx, data)
	if err != nil {
		return s.fail(ctx, file, audit.ActionExtraction, StateExtracted,
			fmt.Errorf("extract %s: %w", file.FileName, err))
	}
	res.Metadata = meta
	res.Fields = liftFields(meta)
	res.State = StateExtracted
	s.transition(ctx, file.FileID, audit.ActionExtraction, StateExtracted, map[string]any{
		"source":      meta.Source,
		"field_count": len(meta.Fields),
	})

	if err := ctx.Err(); err != nil {
		return outcome.FromErr[Result](err)
	}
	cls, err := s.classifier.Classify(ctx, meta)
	if err != nil {
		return s.fail(ctx, file, audit.ActionClassification, StateClassified,
			fmt.Errorf("classify %s: %w", file.FileName, err))
	}
	res.Classification = cls
	res.State = StateClassified
	// The full score vector is audited regardless of confidence.
	s.transition(ctx, file.FileID, audit.ActionClassification, StateClassified, map[string]any{
		"level1":     cls.Level1,
		"level2":     cls.Level2,
		"confidence": cls.Confidence,
		"scores":     cls.Scores,
	})

	res.SafeName = s.namer.SafeName(file.FileName, cls, res.Fields)
	res.State = StateNamed
	s.transition(ctx, file.FileID, audit.ActionMove, StateNamed, map[string]any{
		"safe_name": res.SafeName,
	})

	if err := ctx.Err(); err != nil {
		return outcome.FromErr[Result](err)
	}
	moved, err := s.mover.Move(ctx, file.FilePath, cls, res.SafeName)
	if err != nil {
		return s.fail(ctx, file, audit.ActionMove, StateMoved,
			fmt.Errorf("move %s: %w", file.FileName, err))
	}
	res.OrganizedPath = moved
	res.State = StateMoved
	s.transition(ctx, file.FileID, audit.ActionMove, StateMoved, map[string]any{
		"new_path": moved,
	})

	s.log.Info("extraction complete",
		"file_id", file.FileID,
		"format", format,
		"level1", cls.Level1,
		"path", moved)
	return outcome.Success(res)
}

// fail audits and wraps a terminal transition error. Caller cancellation
// surfaces as Cancelled with no failure record; the work simply stopped.
func (s *Stage) fail(ctx context.Context, file contracts.FileMetadata, action audit.ActionType, state State, err error) outcome.Outcome[Result] {
	if out := outcome.FromErr[Result](err); out.IsCancelled() {
		return out
	}
	s.recorder.Record(ctx, action, audit.StageExtraction, file.FileID, false,
		audit.Details(map[string]any{"transition": transitionName(state)}), err.Error())
	s.log.Warn("extraction transition failed",
		"file_id", file.FileID,
		"transition", transitionName(state),
		"error", err)
	return outcome.Failure[Result](err)
}

func (s *Stage) transition(ctx context.Context, fileID string, action audit.ActionType, state State, details map[string]any) {
	details["transition"] = transitionName(state)
	s.recorder.Record(ctx, action, audit.StageExtraction, fileID, true, audit.Details(details), "")
}

func transitionName(state State) string {
	return strings.ToLower(string(state))
}
