// Package audit defines the structured per-step audit record written by
// every pipeline stage, the correlation-ID plumbing that joins the records
// of one logical flow, and the best-effort recorder stages write through.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// ActionType categorizes the audited operation.
type ActionType string

// Audited action types.
const (
	ActionDownload       ActionType = "DOWNLOAD"
	ActionExtraction     ActionType = "EXTRACTION"
	ActionClassification ActionType = "CLASSIFICATION"
	ActionMove           ActionType = "MOVE"
	ActionReview         ActionType = "REVIEW"
	ActionExport         ActionType = "EXPORT"
)

// Stage names the pipeline stage that produced a record.
type Stage string

// Pipeline stages.
const (
	StageIngestion     Stage = "INGESTION"
	StageExtraction    Stage = "EXTRACTION"
	StageDecisionLogic Stage = "DECISION_LOGIC"
	StageExport        Stage = "EXPORT"
)

// Record is one audit entry. ActionDetails is a self-contained JSON string
// so records survive schema evolution in downstream reporting.
type Record struct {
	AuditID       string     `json:"audit_id"`
	Timestamp     time.Time  `json:"timestamp"`
	CorrelationID string     `json:"correlation_id"`
	FileID        string     `json:"file_id,omitempty"`
	ActionType    ActionType `json:"action_type"`
	Stage         Stage      `json:"stage"`
	UserID        string     `json:"user_id,omitempty"`
	Success       bool       `json:"success"`
	ActionDetails string     `json:"action_details,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Sink accepts audit records. Implementations must serialize writes so no
// partial record is ever observable.
type Sink interface {
	LogAudit(ctx context.Context, rec Record) error
}

// Logger is a Sink that also serves the range queries reporting reads.
// Results are ordered by Timestamp ascending, ties broken by AuditID.
// Zero-valued actionType and userID match every record.
type Logger interface {
	Sink
	GetAuditRecords(ctx context.Context, start, end time.Time, actionType ActionType, userID string) ([]Record, error)
}

// Details marshals a key/value bag into the ActionDetails JSON string.
func Details(kv map[string]any) string {
	b, err := json.Marshal(kv)
	if err != nil {
		return `{"detail_marshal_failed":true}`
	}
	return string(b)
}
