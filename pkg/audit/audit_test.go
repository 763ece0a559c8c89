package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

func TestFileSink_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewFileSink(&buf)

	err := sink.LogAudit(context.Background(), audit.Record{
		AuditID:       "a-1",
		Timestamp:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		CorrelationID: "corr-1",
		ActionType:    audit.ActionDownload,
		Stage:         audit.StageIngestion,
		Success:       true,
		ActionDetails: `{"checksum":"abc"}`,
	})
	require.NoError(t, err)

	var rec audit.Record
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, audit.ActionDownload, rec.ActionType)
	assert.Equal(t, audit.StageIngestion, rec.Stage)
	assert.Equal(t, "corr-1", rec.CorrelationID)
	assert.True(t, rec.Success)
}

type failingSink struct{ calls int }

func (s *failingSink) LogAudit(context.Context, audit.Record) error {
	s.calls++
	return errors.New("sink down")
}

type capturingSink struct{ records []audit.Record }

func (s *capturingSink) LogAudit(_ context.Context, rec audit.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func TestRecorder_BestEffortOnSinkFailure(t *testing.T) {
	sink := &failingSink{}
	rec := audit.NewRecorder(sink, nil)

	// Must not panic or surface the error.
	rec.Record(context.Background(), audit.ActionExport, audit.StageExport, "f-1", false, "", "disk full")
	assert.Equal(t, 1, sink.calls)
}

func TestRecorder_StampsMissingFields(t *testing.T) {
	sink := &capturingSink{}
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	rec := audit.NewRecorder(sink, nil).WithClock(func() time.Time { return now })

	ctx := audit.WithCorrelationID(context.Background(), "corr-7")
	rec.Record(ctx, audit.ActionClassification, audit.StageExtraction, "f-2", true, `{"ok":true}`, "")

	require.Len(t, sink.records, 1)
	got := sink.records[0]
	assert.Len(t, got.AuditID, 36)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, "corr-7", got.CorrelationID)
	assert.Equal(t, "f-2", got.FileID)
}

func TestRecorder_WriteSurvivesCancelledContext(t *testing.T) {
	sink := &capturingSink{}
	rec := audit.NewRecorder(sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, audit.ActionDownload, audit.StageIngestion, "f-3", true, "", "")

	// A record for completed work is written even after cancellation.
	require.Len(t, sink.records, 1)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := audit.EnsureCorrelationID(context.Background())
	require.NotEmpty(t, id)

	got, ok := audit.CorrelationIDFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	// Re-entry preserves the existing ID.
	ctx2, id2 := audit.EnsureCorrelationID(ctx)
	assert.Equal(t, id, id2)
	got2, _ := audit.CorrelationIDFrom(ctx2)
	assert.Equal(t, id, got2)
}

func TestDetails_MarshalsBag(t *testing.T) {
	s := audit.Details(map[string]any{"checksum": "abc", "size": 10})
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	assert.Equal(t, "abc", m["checksum"])
}
