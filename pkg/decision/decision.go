// Package decision runs the third pipeline stage over an assembled
// metadata record: resolve and deduplicate the parties named on the
// expediente, classify the legal directives into concrete compliance
// actions and queue a manual review case when the result does not clear
// the configured bar. Identity resolution always completes before
// directive classification reads the resolved set.
package decision

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/fieldmatch"
	"github.com/meridian-compliance/oficios/pkg/outcome"
	"github.com/meridian-compliance/oficios/pkg/store"
)

// Stage drives identity resolution, directive classification and review
// case management.
type Stage struct {
	resolver   IdentityResolver
	classifier DirectiveClassifier
	gate       *ReviewGate
	reviews    store.ReviewStore
	recorder   *audit.Recorder
	bus        events.Publisher
	log        *slog.Logger
	clock      func() time.Time
}

// NewStage wires the default collaborators: the normalizing identity
// resolver, the keyword directive classifier and the default review rule
// at the configured confidence threshold.
func NewStage(reviews store.ReviewStore, recorder *audit.Recorder, cfg config.ProcessingConfig, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	threshold := int(math.Round(cfg.ConfidenceThreshold * 100))
	gate, _ := NewReviewGate(DefaultReviewRule, threshold)
	return &Stage{
		resolver:   NormalizingResolver{},
		classifier: NewKeywordDirectiveClassifier(),
		gate:       gate,
		reviews:    reviews,
		recorder:   recorder,
		bus:        events.Nop{},
		log:        log.With("component", "decision"),
		clock:      time.Now,
	}
}

// WithResolver replaces the identity resolver.
func (s *Stage) WithResolver(r IdentityResolver) *Stage {
	s.resolver = r
	return s
}

// WithClassifier replaces the directive classifier.
func (s *Stage) WithClassifier(c DirectiveClassifier) *Stage {
	s.classifier = c
	return s
}

// WithReviewRule replaces the review gate expression, keeping the
// configured threshold. An expression that does not compile installs a
// fail-closed gate.
func (s *Stage) WithReviewRule(expr string) *Stage {
	gate, err := NewReviewGate(expr, int(s.gate.threshold))
	if err != nil {
		s.log.Warn("invalid review rule, failing closed", "error", err)
	}
	s.gate = gate
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

// ProcessDecisionLogic runs identity resolution followed by directive
// classification over one record, then revalidates it. A partial
// resolution carries its warnings and confidence through to the result.
// Classification cancelled after resolution completed degrades to a
// Warned record with no actions rather than discarding the resolved
// parties.
func (s *Stage) ProcessDecisionLogic(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[contracts.UnifiedMetadataRecord] {
	if out, done := outcome.Guard[contracts.UnifiedMetadataRecord](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[contracts.UnifiedMetadataRecord] {
		return s.process(ctx, fileID, record)
	})
}

func (s *Stage) process(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[contracts.UnifiedMetadataRecord] {
	resOut := s.resolvePersonas(ctx, fileID, record.Personas)
	switch {
	case resOut.IsCancelled():
		return outcome.Cancelled[contracts.UnifiedMetadataRecord]()
	case resOut.IsFailure():
		return outcome.Failuref[contracts.UnifiedMetadataRecord]("resolve person identities: %w", resOut.Err())
	}
	personas, _ := resOut.Value()
	record.Personas = personas

	actOut := s.classifyDirectives(ctx, fileID, directiveText(record), record.Expediente)
	switch {
	case actOut.IsCancelled():
		record.ComplianceActions = nil
		fieldmatch.ValidateRecord(&record)
		warnings := append(append([]string{}, resOut.Warnings()...), "classification cancelled")
		confidence := resOut.Confidence()
		return outcome.Warned(record, warnings, confidence, 1-confidence)
	case actOut.IsFailure():
		return outcome.Failuref[contracts.UnifiedMetadataRecord]("classify legal directives: %w", actOut.Err())
	}
	actions, _ := actOut.Value()
	record.ComplianceActions = actions
	fieldmatch.ValidateRecord(&record)

	s.log.Info("decision logic complete",
		"file_id", fileID,
		"personas", len(record.Personas),
		"actions", len(record.ComplianceActions))
	if resOut.IsWarned() {
		return outcome.Warned(record, resOut.Warnings(), resOut.Confidence(), resOut.MissingDataRatio())
	}
	return outcome.Success(record)
}

// directiveText assembles the classifier corpus from the record's
// extracted fields. Additional fields join in sorted key order so repeated
// runs see the same text.
func directiveText(record contracts.UnifiedMetadataRecord) string {
	fields := record.ExtractedFields
	parts := make([]string, 0, 2+len(fields.AdditionalFields))
	if fields.AccionSolicitada != "" {
		parts = append(parts, fields.AccionSolicitada)
	}
	if fields.Causa != "" {
		parts = append(parts, fields.Causa)
	}
	keys := make([]string, 0, len(fields.AdditionalFields))
	for k := range fields.AdditionalFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fields.AdditionalFields[k])
	}
	return strings.Join(parts, "\n")
}
