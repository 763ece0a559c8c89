// Package reporting renders audit-trail extracts over a time window as CSV
// or JSON. It is a pure read path over the audit log; generating a report
// never writes audit records of its own.
package reporting

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// csvHeader is the fixed CSV column set. Consumers key on these names, so
// the order never changes within a report generation.
var csvHeader = []string{
	"AuditId",
	"Timestamp",
	"CorrelationId",
	"FileId",
	"ActionType",
	"Stage",
	"UserId",
	"Success",
	"ActionDetails",
	"ErrorMessage",
}

// Query bounds one report. Zero ActionType and UserID match every record.
type Query struct {
	Start      time.Time
	End        time.Time
	ActionType audit.ActionType
	UserID     string
}

func (q Query) validate() error {
	if q.End.Before(q.Start) {
		return fmt.Errorf("invalid report window: end %s before start %s",
			q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	return nil
}

// Envelope is the JSON report document.
type Envelope struct {
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	ActionType  string  `json:"actionType,omitempty"`
	UserID      string  `json:"userId,omitempty"`
	RecordCount int     `json:"recordCount"`
	Records     []Entry `json:"records"`
}

// Entry is one audit record in report form. Timestamps are ISO-8601 UTC.
type Entry struct {
	AuditID       string `json:"auditId"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlationId"`
	FileID        string `json:"fileId,omitempty"`
	ActionType    string `json:"actionType"`
	Stage         string `json:"stage"`
	UserID        string `json:"userId,omitempty"`
	Success       bool   `json:"success"`
	ActionDetails string `json:"actionDetails,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// Reporter reads the audit log and renders reports.
type Reporter struct {
	source audit.Logger
	log    *slog.Logger
}

// NewReporter builds a Reporter over source. A nil logger falls back to
// slog.Default.
func NewReporter(source audit.Logger, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		source: source,
		log:    log.With("component", "reporting"),
	}
}

// GenerateCSV streams the windowed audit records to w as RFC 4180 CSV with
// the fixed header, ordered by Timestamp ascending. Returns the record
// count.
func (r *Reporter) GenerateCSV(ctx context.Context, q Query, w io.Writer) outcome.Outcome[int] {
	if out, done := outcome.Guard[int](ctx); done {
		return out
	}
	recs, out := r.load(ctx, q)
	if !out.IsSuccess() {
		return out
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return outcome.Failure[int](fmt.Errorf("write csv header: %w", err))
	}
	for _, rec := range recs {
		row := []string{
			rec.AuditID,
			formatTime(rec.Timestamp),
			rec.CorrelationID,
			rec.FileID,
			string(rec.ActionType),
			string(rec.Stage),
			rec.UserID,
			strconv.FormatBool(rec.Success),
			rec.ActionDetails,
			rec.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return outcome.Failure[int](fmt.Errorf("write csv row: %w", err))
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return outcome.Failure[int](fmt.Errorf("flush csv: %w", err))
	}
	r.log.Info("csv report generated", "records", len(recs))
	return outcome.Success(len(recs))
}

// GenerateJSON writes the windowed audit records to w as an indented JSON
// envelope. Returns the record count.
func (r *Reporter) GenerateJSON(ctx context.Context, q Query, w io.Writer) outcome.Outcome[int] {
	if out, done := outcome.Guard[int](ctx); done {
		return out
	}
	recs, out := r.load(ctx, q)
	if !out.IsSuccess() {
		return out
	}

	env := Envelope{
		StartDate:   formatTime(q.Start),
		EndDate:     formatTime(q.End),
		ActionType:  string(q.ActionType),
		UserID:      q.UserID,
		RecordCount: len(recs),
		Records:     make([]Entry, 0, len(recs)),
	}
	for _, rec := range recs {
		env.Records = append(env.Records, Entry{
			AuditID:       rec.AuditID,
			Timestamp:     formatTime(rec.Timestamp),
			CorrelationID: rec.CorrelationID,
			FileID:        rec.FileID,
			ActionType:    string(rec.ActionType),
			Stage:         string(rec.Stage),
			UserID:        rec.UserID,
			Success:       rec.Success,
			ActionDetails: rec.ActionDetails,
			ErrorMessage:  rec.ErrorMessage,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return outcome.Failure[int](fmt.Errorf("encode json report: %w", err))
	}
	r.log.Info("json report generated", "records", len(recs))
	return outcome.Success(len(recs))
}

func (r *Reporter) load(ctx context.Context, q Query) ([]audit.Record, outcome.Outcome[int]) {
	if err := q.validate(); err != nil {
		return nil, outcome.Failure[int](err)
	}
	recs, err := r.source.GetAuditRecords(ctx, q.Start, q.End, q.ActionType, q.UserID)
	if err != nil {
		return nil, outcome.FromErr[int](err)
	}
	return recs, outcome.Success(len(recs))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
