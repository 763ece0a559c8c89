package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

func TestPostgresAuditStore_LogAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAuditStore(db)
	ts := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WithArgs("a-1", ts, "corr-1", "f-1", "DOWNLOAD", "INGESTION", nil, true, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.LogAudit(context.Background(), audit.Record{
		AuditID:       "a-1",
		Timestamp:     ts,
		CorrelationID: "corr-1",
		FileID:        "f-1",
		ActionType:    audit.ActionDownload,
		Stage:         audit.StageIngestion,
		Success:       true,
		ActionDetails: `{"checksum":"abc"}`,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditStore_GetAuditRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAuditStore(db)
	start := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	cols := []string{"audit_id", "ts", "correlation_id", "file_id", "action_type", "stage", "user_id", "success", "action_details", "error_message"}
	rows := sqlmock.NewRows(cols).
		AddRow("a-1", start.Add(time.Hour), "corr-1", "f-1", "DOWNLOAD", "INGESTION", nil, true, `{"checksum":"abc"}`, nil).
		AddRow("a-2", start.Add(2*time.Hour), "corr-1", nil, "EXPORT", "EXPORT", "rev-1", false, nil, "stream closed")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT audit_id, ts, correlation_id, file_id, action_type, stage, user_id, success, action_details, error_message")).
		WithArgs(start, end).
		WillReturnRows(rows)

	got, err := s.GetAuditRecords(context.Background(), start, end, "", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionDownload, got[0].ActionType)
	assert.Equal(t, "", got[1].FileID)
	assert.Equal(t, "stream closed", got[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditStore_FilterArgsAppended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAuditStore(db)
	start := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cols := []string{"audit_id", "ts", "correlation_id", "file_id", "action_type", "stage", "user_id", "success", "action_details", "error_message"}
	mock.ExpectQuery(regexp.QuoteMeta("AND action_type = $3 AND user_id = $4")).
		WithArgs(start, end, "REVIEW", "rev-1").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err = s.GetAuditRecords(context.Background(), start, end, audit.ActionReview, "rev-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
