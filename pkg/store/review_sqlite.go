package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// SQLiteReviewStore persists review cases and decisions in SQLite.
type SQLiteReviewStore struct {
	db *sql.DB
}

// NewSQLiteReviewStore wraps db and runs migrations.
func NewSQLiteReviewStore(db *sql.DB) (*SQLiteReviewStore, error) {
	s := &SQLiteReviewStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteReviewStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS review_cases (
        case_id TEXT PRIMARY KEY,
        file_id TEXT NOT NULL,
        reason TEXT NOT NULL,
        status TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT
    );
    CREATE TABLE IF NOT EXISTS review_decisions (
        decision_id TEXT PRIMARY KEY,
        case_id TEXT NOT NULL,
        file_id TEXT NOT NULL,
        decision_type TEXT NOT NULL,
        review_reason TEXT,
        reviewer_id TEXT NOT NULL,
        decided_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_review_status ON review_cases(status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// CreateCase inserts a new case.
func (s *SQLiteReviewStore) CreateCase(ctx context.Context, rc contracts.ReviewCase) error {
	query := `INSERT INTO review_cases (case_id, file_id, reason, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rc.CaseID, rc.FileID, rc.Reason, string(rc.Status),
		rc.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(rc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review case: %w", err)
	}
	return nil
}

// GetCase returns the case for caseID.
func (s *SQLiteReviewStore) GetCase(ctx context.Context, caseID string) (contracts.ReviewCase, error) {
	query := `SELECT case_id, file_id, reason, status, created_at, updated_at FROM review_cases WHERE case_id = ?`
	row := s.db.QueryRowContext(ctx, query, caseID)

	var (
		rc        contracts.ReviewCase
		status    string
		createdAt string
		updatedAt sql.NullString
	)
	err := row.Scan(&rc.CaseID, &rc.FileID, &rc.Reason, &status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return contracts.ReviewCase{}, ErrNotFound
	}
	if err != nil {
		return contracts.ReviewCase{}, err
	}
	rc.Status = contracts.ReviewStatus(status)
	rc.CreatedAt = parseTime(createdAt)
	rc.UpdatedAt = parseTime(updatedAt.String)
	return rc, nil
}

// UpdateCase rewrites status, reason and updated_at for an existing case.
func (s *SQLiteReviewStore) UpdateCase(ctx context.Context, rc contracts.ReviewCase) error {
	query := `UPDATE review_cases SET reason = ?, status = ?, updated_at = ? WHERE case_id = ?`
	res, err := s.db.ExecContext(ctx, query,
		rc.Reason, string(rc.Status), nullableTime(rc.UpdatedAt), rc.CaseID)
	if err != nil {
		return fmt.Errorf("failed to update review case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCasesByStatus returns cases with the given status ordered by creation.
func (s *SQLiteReviewStore) ListCasesByStatus(ctx context.Context, status contracts.ReviewStatus) ([]contracts.ReviewCase, error) {
	query := `SELECT case_id, file_id, reason, status, created_at, updated_at
        FROM review_cases WHERE status = ? ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.ReviewCase
	for rows.Next() {
		var (
			rc        contracts.ReviewCase
			st        string
			createdAt string
			updatedAt sql.NullString
		)
		if err := rows.Scan(&rc.CaseID, &rc.FileID, &rc.Reason, &st, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rc.Status = contracts.ReviewStatus(st)
		rc.CreatedAt = parseTime(createdAt)
		rc.UpdatedAt = parseTime(updatedAt.String)
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDecision inserts a review decision.
func (s *SQLiteReviewStore) SaveDecision(ctx context.Context, d contracts.ReviewDecision) error {
	query := `INSERT INTO review_decisions (decision_id, case_id, file_id, decision_type, review_reason, reviewer_id, decided_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		d.DecisionID, d.CaseID, d.FileID, d.DecisionType,
		nullable(d.ReviewReason), d.ReviewerID,
		d.DecidedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review decision: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
