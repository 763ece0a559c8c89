package contracts

import "time"

// ReviewStatus is the lifecycle state of a manual review case.
type ReviewStatus string

// Review case states.
const (
	ReviewOpen      ReviewStatus = "OPEN"
	ReviewResolved  ReviewStatus = "RESOLVED"
	ReviewCancelled ReviewStatus = "CANCELLED"
)

// ReviewCase is a human-in-the-loop task queued when classification
// confidence or validation demands a decision.
type ReviewCase struct {
	CaseID    string       `json:"case_id"`
	FileID    string       `json:"file_id"`
	Reason    string       `json:"reason"`
	Status    ReviewStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// ReviewDecision records a reviewer's resolution of a case.
type ReviewDecision struct {
	DecisionID   string    `json:"decision_id"`
	CaseID       string    `json:"case_id"`
	FileID       string    `json:"file_id"`
	DecisionType string    `json:"decision_type"`
	ReviewReason string    `json:"review_reason,omitempty"`
	ReviewerID   string    `json:"reviewer_id"`
	DecidedAt    time.Time `json:"decided_at"`
}
