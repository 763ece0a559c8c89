// Package export runs the final pipeline stage: validate a unified record
// for completeness, then emit the regulator XML response, the registration
// Excel layout or the signed PDF with its requirement summary. Every
// operation recomputes validation before touching the output stream and
// writes an artifact receipt on success.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/crypto"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/fieldmatch"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// Kind names the artifact family an export produced.
type Kind string

// Export artifact kinds.
const (
	KindRegulatorXML Kind = "xml"
	KindExcelLayout  Kind = "excel"
	KindSignedPDF    Kind = "pdf"
)

// Stage drives the export operations.
type Stage struct {
	signer     crypto.Signer
	summarizer Summarizer
	layout     LayoutGenerator
	receipts   ReceiptStore
	tokens     *TokenIssuer
	recorder   *audit.Recorder
	bus        events.Publisher
	log        *slog.Logger
	clock      func() time.Time
}

// NewStage wires the default collaborators: the current Excel layout, the
// record-driven summarizer and an in-memory receipt store. signer seals the
// PDF artifacts and may be nil only when PDFs are never exported.
func NewStage(signer crypto.Signer, recorder *audit.Recorder, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	layout, _ := NewExcelLayoutGenerator(CurrentLayoutVersion)
	return &Stage{
		signer:     signer,
		summarizer: RequirementSummarizer{},
		layout:     layout,
		receipts:   NewMemoryReceiptStore(),
		recorder:   recorder,
		bus:        events.Nop{},
		log:        log.With("component", "export"),
		clock:      time.Now,
	}
}

// WithSummarizer replaces the requirement summarizer.
func (s *Stage) WithSummarizer(sum Summarizer) *Stage {
	s.summarizer = sum
	return s
}

// WithLayout replaces the Excel layout generator.
func (s *Stage) WithLayout(gen LayoutGenerator) *Stage {
	s.layout = gen
	return s
}

// WithReceipts replaces the artifact receipt store.
func (s *Stage) WithReceipts(rs ReceiptStore) *Stage {
	s.receipts = rs
	return s
}

// WithTokens installs a download-token issuer for produced artifacts.
func (s *Stage) WithTokens(ti *TokenIssuer) *Stage {
	s.tokens = ti
	return s
}

// WithPublisher replaces the event publisher.
func (s *Stage) WithPublisher(bus events.Publisher) *Stage {
	s.bus = bus
	return s
}

// WithClock overrides the timestamp source. For tests.
func (s *Stage) WithClock(clock func() time.Time) *Stage {
	s.clock = clock
	return s
}

// DownloadToken mints a signed download token for a stored receipt. The
// stage must have been wired with a token issuer.
func (s *Stage) DownloadToken(ctx context.Context, artifactID string) (string, error) {
	if s.tokens == nil {
		return "", fmt.Errorf("no token issuer configured")
	}
	rec, err := s.receipts.GetReceipt(ctx, artifactID)
	if err != nil {
		return "", fmt.Errorf("load receipt %s: %w", artifactID, err)
	}
	return s.tokens.Mint(rec)
}

// requireExportable recomputes record validation and reports the blocking
// omissions. The output stream has not been touched when this fails.
func (s *Stage) requireExportable(ctx context.Context, fileID string, kind Kind, record *contracts.UnifiedMetadataRecord) error {
	fieldmatch.ValidateRecord(record)
	if record.Validation.IsValid() {
		return nil
	}
	missing := record.Validation.Missing
	err := fmt.Errorf("record not exportable, missing: %s", strings.Join(missing, ", "))
	s.recorder.Record(ctx, audit.ActionExport, audit.StageExport, fileID, false,
		audit.Details(map[string]any{
			"kind":    kind,
			"missing": missing,
		}), err.Error())
	s.log.Warn("export blocked by validation",
		"file_id", fileID,
		"kind", kind,
		"missing", missing)
	return err
}

// finish stores the receipt, audits the export and publishes the
// completion event. Receipt persistence is best-effort.
func (s *Stage) finish(ctx context.Context, rec Receipt, details map[string]any) {
	if err := s.receipts.SaveReceipt(ctx, rec); err != nil {
		s.log.Warn("artifact receipt write failed",
			"artifact_id", rec.ArtifactID,
			"error", err)
	}
	details["kind"] = rec.Kind
	details["artifact_id"] = rec.ArtifactID
	details["sha256"] = rec.SHA256
	details["size_bytes"] = rec.SizeBytes
	s.recorder.Record(ctx, audit.ActionExport, audit.StageExport, rec.FileID, true,
		audit.Details(details), "")
	s.bus.Publish(ctx, events.Event{
		Type: events.TypeExportCompleted,
		ExportCompleted: &events.ExportCompleted{
			FileID:     rec.FileID,
			Kind:       string(rec.Kind),
			ArtifactID: rec.ArtifactID,
		},
	})
	s.log.Info("export complete",
		"file_id", rec.FileID,
		"kind", rec.Kind,
		"artifact_id", rec.ArtifactID,
		"size_bytes", rec.SizeBytes)
}

// artifactWriter tees writes into a running SHA-256 and byte count so the
// receipt describes exactly what reached the stream.
type artifactWriter struct {
	w    io.Writer
	hash hash.Hash
	n    int64
}

func newArtifactWriter(w io.Writer) *artifactWriter {
	return &artifactWriter{w: w, hash: sha256.New()}
}

func (aw *artifactWriter) Write(p []byte) (int, error) {
	n, err := aw.w.Write(p)
	if n > 0 {
		aw.hash.Write(p[:n])
		aw.n += int64(n)
	}
	return n, err
}

func (aw *artifactWriter) sum() string {
	return hex.EncodeToString(aw.hash.Sum(nil))
}

func (s *Stage) failExport(ctx context.Context, fileID string, kind Kind, err error) outcome.Outcome[Receipt] {
	if out := outcome.FromErr[Receipt](err); out.IsCancelled() {
		return out
	}
	s.recorder.Record(ctx, audit.ActionExport, audit.StageExport, fileID, false,
		audit.Details(map[string]any{"kind": kind}), err.Error())
	s.log.Warn("export failed",
		"file_id", fileID,
		"kind", kind,
		"error", err)
	return outcome.Failure[Receipt](err)
}
