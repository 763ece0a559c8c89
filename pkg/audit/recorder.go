package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder is the write path stages use. Writes are best-effort: a sink
// failure is logged as a warning and never fails the domain operation. The
// write itself is detached from the caller's cancellation so a record for
// work already done is not lost when the operation is cancelled afterwards.
type Recorder struct {
	sink  Sink
	log   *slog.Logger
	clock func() time.Time
}

// NewRecorder wraps sink. A nil logger falls back to slog.Default.
func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		sink:  sink,
		log:   log.With("component", "audit"),
		clock: time.Now,
	}
}

// WithClock overrides the timestamp source. For tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Write stamps and persists rec. Missing AuditID, Timestamp and
// CorrelationID are filled in; the correlation ID comes from ctx.
func (r *Recorder) Write(ctx context.Context, rec Record) {
	if r == nil || r.sink == nil {
		return
	}
	if rec.AuditID == "" {
		rec.AuditID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock().UTC()
	}
	if rec.CorrelationID == "" {
		if id, ok := CorrelationIDFrom(ctx); ok {
			rec.CorrelationID = id
		}
	}
	if err := r.sink.LogAudit(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("audit write failed",
			"action_type", rec.ActionType,
			"stage", rec.Stage,
			"file_id", rec.FileID,
			"error", err)
	}
}

// Record is the common-case Write: success flag, optional details JSON and
// error message.
func (r *Recorder) Record(ctx context.Context, action ActionType, stage Stage, fileID string, success bool, details, errMsg string) {
	r.Write(ctx, Record{
		FileID:        fileID,
		ActionType:    action,
		Stage:         stage,
		Success:       success,
		ActionDetails: details,
		ErrorMessage:  errMsg,
	})
}
