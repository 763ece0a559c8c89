package reporting_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/reporting"
	"github.com/meridian-compliance/oficios/pkg/store"
)

var reportDay = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// seedAuditLog loads three records across two correlation IDs, one with an
// embedded comma in its details.
func seedAuditLog(t *testing.T) *store.MemoryAuditStore {
	t.Helper()
	log := store.NewMemoryAuditStore()
	ctx := context.Background()

	recs := []audit.Record{
		{
			AuditID:       "a-1",
			Timestamp:     reportDay.Add(9 * time.Hour),
			CorrelationID: "corr-1",
			FileID:        "file-1",
			ActionType:    audit.ActionDownload,
			Stage:         audit.StageIngestion,
			Success:       true,
			ActionDetails: `{"file_name":"oficio.pdf","size":1024}`,
		},
		{
			AuditID:       "a-2",
			Timestamp:     reportDay.Add(10 * time.Hour),
			CorrelationID: "corr-1",
			FileID:        "file-1",
			ActionType:    audit.ActionExtraction,
			Stage:         audit.StageExtraction,
			Success:       false,
			ErrorMessage:  "unreadable page",
		},
		{
			AuditID:       "a-3",
			Timestamp:     reportDay.Add(11 * time.Hour),
			CorrelationID: "corr-2",
			FileID:        "file-2",
			ActionType:    audit.ActionExport,
			Stage:         audit.StageExport,
			UserID:        "analyst-7",
			Success:       true,
			ActionDetails: `{"kind":"xml","artifact_id":"art-9"}`,
		},
	}
	for _, rec := range recs {
		require.NoError(t, log.LogAudit(ctx, rec))
	}
	return log
}

func dayQuery() reporting.Query {
	return reporting.Query{Start: reportDay, End: reportDay.Add(24 * time.Hour)}
}

func TestGenerateCSVRoundTrip(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)

	var buf bytes.Buffer
	out := rep.GenerateCSV(context.Background(), dayQuery(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	count, _ := out.Value()
	assert.Equal(t, 3, count)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4, "header plus three records")
	assert.Equal(t,
		"AuditId,Timestamp,CorrelationId,FileId,ActionType,Stage,UserId,Success,ActionDetails,ErrorMessage",
		lines[0])

	// the comma-bearing details field must come back intact through a
	// conforming CSV reader
	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "a-1", rows[1][0])
	assert.Equal(t, `{"file_name":"oficio.pdf","size":1024}`, rows[1][8])
	assert.Equal(t, "a-2", rows[2][0])
	assert.Equal(t, "false", rows[2][7])
	assert.Equal(t, "a-3", rows[3][0])
	assert.Equal(t, "analyst-7", rows[3][6])

	// timestamps ascend
	require.True(t, rows[1][1] < rows[2][1] && rows[2][1] < rows[3][1])
}

func TestGenerateJSONEnvelope(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)

	var buf bytes.Buffer
	out := rep.GenerateJSON(context.Background(), dayQuery(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())

	var env reporting.Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, 3, env.RecordCount)
	require.Len(t, env.Records, 3)
	assert.Equal(t, "a-1", env.Records[0].AuditID)
	assert.Equal(t, "a-3", env.Records[2].AuditID)
	assert.Equal(t, "2025-01-06T09:00:00Z", env.Records[0].Timestamp)
	assert.Equal(t, "2025-01-06T00:00:00Z", env.StartDate)

	// envelope keys are camelCase
	assert.Contains(t, buf.String(), `"recordCount": 3`)
	assert.Contains(t, buf.String(), `"correlationId": "corr-1"`)
}

func TestGenerateJSONFilters(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)

	var buf bytes.Buffer
	q := dayQuery()
	q.ActionType = audit.ActionExport
	out := rep.GenerateJSON(context.Background(), q, &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())

	var env reporting.Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, 1, env.RecordCount)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "a-3", env.Records[0].AuditID)
	assert.Equal(t, "EXPORT", env.ActionType)
}

func TestGenerateReportInvalidWindow(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)

	var buf bytes.Buffer
	q := reporting.Query{Start: reportDay, End: reportDay.Add(-time.Hour)}
	out := rep.GenerateCSV(context.Background(), q, &buf)
	require.True(t, out.IsFailure())
	assert.Contains(t, out.Err().Error(), "end")
	assert.Zero(t, buf.Len(), "an invalid window writes nothing")

	out = rep.GenerateJSON(context.Background(), q, &buf)
	assert.True(t, out.IsFailure())
}

func TestGenerateReportEmptyWindow(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)

	var buf bytes.Buffer
	q := reporting.Query{Start: reportDay.Add(-48 * time.Hour), End: reportDay.Add(-24 * time.Hour)}
	out := rep.GenerateJSON(context.Background(), q, &buf)
	require.True(t, out.IsSuccess())

	var env reporting.Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Zero(t, env.RecordCount)
	assert.NotNil(t, env.Records, "records array is present even when empty")
}

func TestGenerateReportPreCancelled(t *testing.T) {
	rep := reporting.NewReporter(seedAuditLog(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	out := rep.GenerateCSV(ctx, dayQuery(), &buf)
	assert.True(t, out.IsCancelled())
	assert.Zero(t, buf.Len())
}
