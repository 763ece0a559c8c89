package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

// SQLiteAuditStore persists audit records in an embedded SQLite database.
// Timestamps are stored as RFC3339Nano TEXT; ordering is applied in Go after
// scanning so it does not depend on string collation of trimmed fractions.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore wraps db and runs migrations.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	s := &SQLiteAuditStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteAuditStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS audit_records (
        audit_id TEXT PRIMARY KEY,
        ts TEXT NOT NULL,
        correlation_id TEXT NOT NULL,
        file_id TEXT,
        action_type TEXT NOT NULL,
        stage TEXT NOT NULL,
        user_id TEXT,
        success INTEGER NOT NULL,
        action_details TEXT,
        error_message TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_records(ts);
    CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_records(correlation_id);
    CREATE INDEX IF NOT EXISTS idx_audit_action_ts ON audit_records(action_type, ts);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// LogAudit inserts one record.
func (s *SQLiteAuditStore) LogAudit(ctx context.Context, rec audit.Record) error {
	query := `INSERT INTO audit_records (
        audit_id, ts, correlation_id, file_id, action_type, stage, user_id, success, action_details, error_message
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.AuditID,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.CorrelationID,
		nullable(rec.FileID),
		string(rec.ActionType),
		string(rec.Stage),
		nullable(rec.UserID),
		success,
		nullable(rec.ActionDetails),
		nullable(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// GetAuditRecords queries the inclusive time window with optional filters.
func (s *SQLiteAuditStore) GetAuditRecords(ctx context.Context, start, end time.Time, actionType audit.ActionType, userID string) ([]audit.Record, error) {
	query := `
        SELECT audit_id, ts, correlation_id, file_id, action_type, stage, user_id, success, action_details, error_message
        FROM audit_records
        WHERE ts >= ? AND ts <= ?`
	args := []any{
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	}
	if actionType != "" {
		query += ` AND action_type = ?`
		args = append(args, string(actionType))
	}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		rec, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortRecords(out)
	return out, nil
}

func scanAuditRow(rows *sql.Rows) (audit.Record, error) {
	var (
		auditID       string
		ts            string
		correlationID string
		fileID        sql.NullString
		actionType    string
		stage         string
		userID        sql.NullString
		success       int
		actionDetails sql.NullString
		errorMessage  sql.NullString
	)
	if err := rows.Scan(&auditID, &ts, &correlationID, &fileID, &actionType, &stage, &userID, &success, &actionDetails, &errorMessage); err != nil {
		return audit.Record{}, err
	}
	return audit.Record{
		AuditID:       auditID,
		Timestamp:     parseTime(ts),
		CorrelationID: correlationID,
		FileID:        fileID.String,
		ActionType:    audit.ActionType(actionType),
		Stage:         audit.Stage(stage),
		UserID:        userID.String,
		Success:       success != 0,
		ActionDetails: actionDetails.String,
		ErrorMessage:  errorMessage.String,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
