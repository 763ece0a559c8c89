package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// DefaultReviewRule is the stock review predicate: a record goes to manual
// review when its classification confidence is below the configured
// threshold or it is not exportable.
const DefaultReviewRule = `confidence < threshold || !is_valid`

// ReviewGate decides whether a record needs a human decision. The predicate
// is a CEL expression over the record's classification and validation
// features; an expression that does not compile fails closed and routes
// everything to review.
type ReviewGate struct {
	prg       cel.Program
	expr      string
	threshold int64
}

// NewReviewGate compiles expr at the given confidence threshold (0–100).
// On a compile error the returned gate is still usable but fail-closed.
func NewReviewGate(expr string, threshold int) (*ReviewGate, error) {
	g := &ReviewGate{expr: expr, threshold: int64(threshold)}

	env, err := cel.NewEnv(
		cel.Variable("confidence", cel.IntType),
		cel.Variable("threshold", cel.IntType),
		cel.Variable("level1", cel.StringType),
		cel.Variable("is_valid", cel.BoolType),
		cel.Variable("conflict_count", cel.IntType),
		cel.Variable("persona_warnings", cel.IntType),
	)
	if err != nil {
		return g, fmt.Errorf("review gate environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return g, fmt.Errorf("compile review rule: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return g, fmt.Errorf("program review rule: %w", err)
	}
	g.prg = prg
	return g, nil
}

// Evaluate runs the predicate over record and, when review is needed,
// derives a human-readable reason. Evaluation errors fail closed.
func (g *ReviewGate) Evaluate(record contracts.UnifiedMetadataRecord) (bool, string) {
	if g.prg == nil {
		return true, "review rule invalid, failing closed"
	}

	conflicts := len(record.MatchedFields.ConflictingFields) + len(record.AdditionalFieldConflicts)
	personaFindings := 0
	for _, p := range record.Personas {
		personaFindings += len(p.Validation.Missing) + len(p.Validation.Warnings)
	}
	out, _, err := g.prg.Eval(map[string]any{
		"confidence":       int64(record.Classification.Confidence),
		"threshold":        g.threshold,
		"level1":           string(record.Classification.Level1),
		"is_valid":         record.Validation.IsValid(),
		"conflict_count":   int64(conflicts),
		"persona_warnings": int64(personaFindings),
	})
	if err != nil {
		return true, fmt.Sprintf("review rule evaluation failed: %v", err)
	}
	needs, ok := out.Value().(bool)
	if !ok {
		return true, "review rule did not produce a boolean, failing closed"
	}
	if !needs {
		return false, ""
	}
	return true, g.reason(record, conflicts, personaFindings)
}

// reason names the observable conditions that plausibly fired the rule.
// A custom rule matching on something else still gets a generic reason.
func (g *ReviewGate) reason(record contracts.UnifiedMetadataRecord, conflicts, personaFindings int) string {
	var parts []string
	if int64(record.Classification.Confidence) < g.threshold {
		parts = append(parts, fmt.Sprintf("classification confidence %d below threshold %d",
			record.Classification.Confidence, g.threshold))
	}
	if !record.Validation.IsValid() {
		parts = append(parts, "record not exportable, missing "+strings.Join(record.Validation.Missing, ", "))
	}
	if conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d field conflicts", conflicts))
	}
	if personaFindings > 0 {
		parts = append(parts, fmt.Sprintf("%d persona validation findings", personaFindings))
	}
	if len(parts) == 0 {
		return "review rule matched"
	}
	return strings.Join(parts, "; ")
}

// IdentifyReviewCases evaluates the review gate over a processed record and
// queues a review case when it fires. The queued case is audited and a
// ReviewCaseOpened event published.
func (s *Stage) IdentifyReviewCases(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[[]contracts.ReviewCase] {
	if out, done := outcome.Guard[[]contracts.ReviewCase](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[[]contracts.ReviewCase] {
		return s.identifyReviewCases(ctx, fileID, record)
	})
}

func (s *Stage) identifyReviewCases(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord) outcome.Outcome[[]contracts.ReviewCase] {
	needs, reason := s.gate.Evaluate(record)
	if !needs {
		return outcome.Success[[]contracts.ReviewCase](nil)
	}

	rc := contracts.ReviewCase{
		CaseID:    uuid.New().String(),
		FileID:    fileID,
		Reason:    reason,
		Status:    contracts.ReviewOpen,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.reviews.CreateCase(ctx, rc); err != nil {
		if out := outcome.FromErr[[]contracts.ReviewCase](err); out.IsCancelled() {
			return out
		}
		s.recorder.Record(ctx, audit.ActionReview, audit.StageDecisionLogic, fileID, false,
			audit.Details(map[string]any{"step": "queue_review_case"}), err.Error())
		return outcome.Failuref[[]contracts.ReviewCase]("queue review case: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionReview, audit.StageDecisionLogic, fileID, true,
		audit.Details(map[string]any{
			"step":    "queue_review_case",
			"case_id": rc.CaseID,
			"reason":  rc.Reason,
		}), "")
	s.bus.Publish(ctx, events.Event{
		Type:             events.TypeReviewCaseOpened,
		ReviewCaseOpened: &events.ReviewCaseOpened{Case: rc},
	})
	s.log.Info("review case queued",
		"file_id", fileID,
		"case_id", rc.CaseID,
		"reason", rc.Reason)
	return outcome.Success([]contracts.ReviewCase{rc})
}

// OpenReviewCases returns the queue of cases awaiting a decision.
func (s *Stage) OpenReviewCases(ctx context.Context) ([]contracts.ReviewCase, error) {
	return s.reviews.ListCasesByStatus(ctx, contracts.ReviewOpen)
}

// ProcessReviewDecision applies a reviewer's decision to an open case: the
// decision is persisted, the case moves to Resolved (or Cancelled for a
// cancelling decision type) and the transition is audited.
func (s *Stage) ProcessReviewDecision(ctx context.Context, caseID string, d contracts.ReviewDecision) outcome.Outcome[contracts.ReviewCase] {
	if out, done := outcome.Guard[contracts.ReviewCase](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[contracts.ReviewCase] {
		return s.processReviewDecision(ctx, caseID, d)
	})
}

func (s *Stage) processReviewDecision(ctx context.Context, caseID string, d contracts.ReviewDecision) outcome.Outcome[contracts.ReviewCase] {
	rc, err := s.reviews.GetCase(ctx, caseID)
	if err != nil {
		if out := outcome.FromErr[contracts.ReviewCase](err); out.IsCancelled() {
			return out
		}
		return outcome.Failuref[contracts.ReviewCase]("load review case %s: %w", caseID, err)
	}

	if d.DecisionID == "" {
		d.DecisionID = uuid.New().String()
	}
	d.CaseID = caseID
	if d.FileID == "" {
		d.FileID = rc.FileID
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.clock().UTC()
	}

	rc.Status = statusForDecision(d.DecisionType)
	rc.UpdatedAt = s.clock().UTC()
	if err := s.reviews.UpdateCase(ctx, rc); err != nil {
		return s.failReview(ctx, rc.FileID, d, fmt.Errorf("update review case %s: %w", caseID, err))
	}
	if err := s.reviews.SaveDecision(ctx, d); err != nil {
		return s.failReview(ctx, rc.FileID, d, fmt.Errorf("save review decision %s: %w", d.DecisionID, err))
	}

	s.recorder.Record(ctx, audit.ActionReview, audit.StageDecisionLogic, rc.FileID, true,
		audit.Details(map[string]any{
			"step":          "process_review_decision",
			"case_id":       caseID,
			"decision_id":   d.DecisionID,
			"decision_type": d.DecisionType,
			"reviewer_id":   d.ReviewerID,
			"status":        rc.Status,
		}), "")
	s.log.Info("review decision processed",
		"case_id", caseID,
		"decision_type", d.DecisionType,
		"status", rc.Status)
	return outcome.Success(rc)
}

func (s *Stage) failReview(ctx context.Context, fileID string, d contracts.ReviewDecision, err error) outcome.Outcome[contracts.ReviewCase] {
	if out := outcome.FromErr[contracts.ReviewCase](err); out.IsCancelled() {
		return out
	}
	s.recorder.Record(ctx, audit.ActionReview, audit.StageDecisionLogic, fileID, false,
		audit.Details(map[string]any{
			"step":    "process_review_decision",
			"case_id": d.CaseID,
		}), err.Error())
	return outcome.Failure[contracts.ReviewCase](err)
}

// statusForDecision maps a decision type onto the case's terminal status.
// Rejections still resolve the case; only an explicit cancellation leaves
// it cancelled.
func statusForDecision(decisionType string) contracts.ReviewStatus {
	switch strings.ToLower(strings.TrimSpace(decisionType)) {
	case "cancel", "cancelled", "canceled", "withdrawn":
		return contracts.ReviewCancelled
	default:
		return contracts.ReviewResolved
	}
}
