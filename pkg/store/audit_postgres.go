package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

// PostgresAuditStore persists audit records in Postgres for server
// deployments where several workers share one audit trail. Schema:
//
//	CREATE TABLE audit_records (
//	    audit_id TEXT PRIMARY KEY,
//	    ts TIMESTAMPTZ NOT NULL,
//	    correlation_id TEXT NOT NULL,
//	    file_id TEXT,
//	    action_type TEXT NOT NULL,
//	    stage TEXT NOT NULL,
//	    user_id TEXT,
//	    success BOOLEAN NOT NULL,
//	    action_details TEXT,
//	    error_message TEXT
//	);
//
// with indexes on (ts), (correlation_id) and (action_type, ts).
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore wraps an open connection pool. The caller owns
// migrations; lib/pq is imported by the binary that opens the pool.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

// LogAudit inserts one record. Re-inserting the same AuditID is a no-op so
// retried best-effort writes stay idempotent.
func (s *PostgresAuditStore) LogAudit(ctx context.Context, rec audit.Record) error {
	query := `
        INSERT INTO audit_records (audit_id, ts, correlation_id, file_id, action_type, stage, user_id, success, action_details, error_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (audit_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		rec.AuditID,
		rec.Timestamp.UTC(),
		rec.CorrelationID,
		nullable(rec.FileID),
		string(rec.ActionType),
		string(rec.Stage),
		nullable(rec.UserID),
		rec.Success,
		nullable(rec.ActionDetails),
		nullable(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// GetAuditRecords queries the inclusive window ordered by ts then audit_id.
func (s *PostgresAuditStore) GetAuditRecords(ctx context.Context, start, end time.Time, actionType audit.ActionType, userID string) ([]audit.Record, error) {
	query := `
        SELECT audit_id, ts, correlation_id, file_id, action_type, stage, user_id, success, action_details, error_message
        FROM audit_records
        WHERE ts >= $1 AND ts <= $2`
	args := []any{start.UTC(), end.UTC()}
	if actionType != "" {
		args = append(args, string(actionType))
		query += fmt.Sprintf(" AND action_type = $%d", len(args))
	}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += " ORDER BY ts ASC, audit_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		var (
			rec           audit.Record
			ts            time.Time
			fileID        sql.NullString
			userIDCol     sql.NullString
			actionDetails sql.NullString
			errorMessage  sql.NullString
			actionTypeCol string
			stage         string
		)
		if err := rows.Scan(&rec.AuditID, &ts, &rec.CorrelationID, &fileID, &actionTypeCol, &stage, &userIDCol, &rec.Success, &actionDetails, &errorMessage); err != nil {
			return nil, err
		}
		rec.Timestamp = ts.UTC()
		rec.FileID = fileID.String
		rec.ActionType = audit.ActionType(actionTypeCol)
		rec.Stage = audit.Stage(stage)
		rec.UserID = userIDCol.String
		rec.ActionDetails = actionDetails.String
		rec.ErrorMessage = errorMessage.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
