package decision_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/decision"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/fieldmatch"
)

func TestReviewGateDefaultRule(t *testing.T) {
	gate, err := decision.NewReviewGate(decision.DefaultReviewRule, 70)
	require.NoError(t, err)

	record := testRecord()
	fieldmatch.ValidateRecord(&record)
	needs, _ := gate.Evaluate(record)
	assert.False(t, needs, "confident, exportable record passes")

	record.Classification.Confidence = 40
	needs, reason := gate.Evaluate(record)
	assert.True(t, needs)
	assert.Contains(t, reason, "confidence 40 below threshold 70")

	record = testRecord()
	record.Expediente.NumeroOficio = ""
	fieldmatch.ValidateRecord(&record)
	needs, reason = gate.Evaluate(record)
	assert.True(t, needs)
	assert.Contains(t, reason, "NumeroOficio")
}

func TestReviewGateInvalidExpressionFailsClosed(t *testing.T) {
	gate, err := decision.NewReviewGate("this is not CEL (((", 70)
	require.Error(t, err)

	needs, reason := gate.Evaluate(testRecord())
	assert.True(t, needs, "an uncompilable rule routes everything to review")
	assert.Contains(t, reason, "failing closed")
}

func TestReviewGateCustomRule(t *testing.T) {
	gate, err := decision.NewReviewGate(`conflict_count > 0 || persona_warnings > 2`, 70)
	require.NoError(t, err)

	record := testRecord()
	fieldmatch.ValidateRecord(&record)
	needs, _ := gate.Evaluate(record)
	assert.False(t, needs)

	record.MatchedFields.ConflictingFields = []string{"Expediente"}
	needs, reason := gate.Evaluate(record)
	assert.True(t, needs)
	assert.Contains(t, reason, "1 field conflicts")
}

func TestIdentifyReviewCasesQueuesLowConfidence(t *testing.T) {
	stage, reviews, sink := newTestStage(t)
	bus := events.NewBus(nil)
	var published []events.Event
	bus.Subscribe(func(e events.Event) { published = append(published, e) })
	stage.WithPublisher(bus)

	record := testRecord()
	record.Classification.Confidence = 35
	fieldmatch.ValidateRecord(&record)

	out := stage.IdentifyReviewCases(context.Background(), "file-1", record)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	cases, _ := out.Value()
	require.Len(t, cases, 1)
	assert.Equal(t, "file-1", cases[0].FileID)
	assert.Equal(t, contracts.ReviewOpen, cases[0].Status)
	assert.Contains(t, cases[0].Reason, "confidence 35")

	open, err := reviews.ListCasesByStatus(context.Background(), contracts.ReviewOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionReview, records[0].ActionType)
	assert.Equal(t, audit.StageDecisionLogic, records[0].Stage)
	assert.True(t, records[0].Success)

	require.Len(t, published, 1)
	assert.Equal(t, events.TypeReviewCaseOpened, published[0].Type)
	assert.Equal(t, cases[0].CaseID, published[0].ReviewCaseOpened.Case.CaseID)
}

func TestIdentifyReviewCasesPassesConfidentRecord(t *testing.T) {
	stage, reviews, sink := newTestStage(t)

	record := testRecord()
	fieldmatch.ValidateRecord(&record)

	out := stage.IdentifyReviewCases(context.Background(), "file-1", record)
	require.True(t, out.IsSuccess())
	cases, _ := out.Value()
	assert.Empty(t, cases)

	open, err := reviews.ListCasesByStatus(context.Background(), contracts.ReviewOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Empty(t, sink.all())
}

func TestProcessReviewDecisionResolvesCase(t *testing.T) {
	stage, reviews, sink := newTestStage(t)

	record := testRecord()
	record.Classification.Confidence = 10
	fieldmatch.ValidateRecord(&record)
	out := stage.IdentifyReviewCases(context.Background(), "file-1", record)
	require.True(t, out.IsSuccess())
	cases, _ := out.Value()
	require.Len(t, cases, 1)

	decided := stage.ProcessReviewDecision(context.Background(), cases[0].CaseID, contracts.ReviewDecision{
		DecisionType: "approve",
		ReviewerID:   "reviewer-7",
	})
	require.True(t, decided.IsSuccess(), "outcome: %v", decided.Err())
	rc, _ := decided.Value()
	assert.Equal(t, contracts.ReviewResolved, rc.Status)

	stored, err := reviews.GetCase(context.Background(), cases[0].CaseID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ReviewResolved, stored.Status)

	decisions := reviews.Decisions()
	require.Len(t, decisions, 1)
	assert.NotEmpty(t, decisions[0].DecisionID)
	assert.Equal(t, cases[0].CaseID, decisions[0].CaseID)
	assert.Equal(t, "file-1", decisions[0].FileID)
	assert.False(t, decisions[0].DecidedAt.IsZero())

	records := sink.all()
	require.Len(t, records, 2, "queueing and deciding each write one record")
	assert.Equal(t, audit.ActionReview, records[1].ActionType)
	assert.True(t, records[1].Success)
}

func TestProcessReviewDecisionCancelType(t *testing.T) {
	stage, reviews, _ := newTestStage(t)
	require.NoError(t, reviews.CreateCase(context.Background(), contracts.ReviewCase{
		CaseID: "case-1",
		FileID: "file-1",
		Status: contracts.ReviewOpen,
	}))

	out := stage.ProcessReviewDecision(context.Background(), "case-1", contracts.ReviewDecision{
		DecisionType: "cancel",
		ReviewerID:   "reviewer-7",
	})
	require.True(t, out.IsSuccess())
	rc, _ := out.Value()
	assert.Equal(t, contracts.ReviewCancelled, rc.Status)
}

func TestProcessReviewDecisionUnknownCase(t *testing.T) {
	stage, _, _ := newTestStage(t)

	out := stage.ProcessReviewDecision(context.Background(), "missing", contracts.ReviewDecision{
		DecisionType: "approve",
	})
	require.True(t, out.IsFailure())
	assert.Contains(t, out.Err().Error(), "missing")
}

func TestProcessReviewDecisionPreCancelled(t *testing.T) {
	stage, reviews, sink := newTestStage(t)
	require.NoError(t, reviews.CreateCase(context.Background(), contracts.ReviewCase{
		CaseID: "case-1",
		Status: contracts.ReviewOpen,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := stage.ProcessReviewDecision(ctx, "case-1", contracts.ReviewDecision{DecisionType: "approve"})
	assert.True(t, out.IsCancelled())
	assert.Empty(t, sink.all())

	stored, err := reviews.GetCase(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.ReviewOpen, stored.Status, "a cancelled call leaves the case untouched")
}
