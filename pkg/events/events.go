// Package events carries the domain events the pipeline publishes for
// observers. Dispatch is synchronous and best-effort: every subscriber is
// invoked exactly once per published event, a panicking or slow subscriber
// never affects the publisher, and a lost event is acceptable while a
// duplicate is not.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Type tags the event union.
type Type string

// Event types.
const (
	TypeDocumentDownloaded Type = "DOCUMENT_DOWNLOADED"
	TypeReviewCaseOpened   Type = "REVIEW_CASE_OPENED"
	TypeCaseEscalated      Type = "CASE_ESCALATED"
	TypeExportCompleted    Type = "EXPORT_COMPLETED"
)

// DocumentDownloaded fires after a file's storage write has been
// acknowledged and its metadata logged.
type DocumentDownloaded struct {
	File contracts.FileMetadata `json:"file"`
}

// ReviewCaseOpened fires when decision logic queues a manual review case.
type ReviewCaseOpened struct {
	Case contracts.ReviewCase `json:"case"`
}

// CaseEscalated fires when a tracked case changes escalation level.
type CaseEscalated struct {
	FileID string `json:"file_id"`
	Level  string `json:"level"`
}

// ExportCompleted fires after an export artifact has been fully written.
type ExportCompleted struct {
	FileID     string `json:"file_id"`
	Kind       string `json:"kind"` // xml | excel | pdf
	ArtifactID string `json:"artifact_id,omitempty"`
}

// Event is the tagged union handed to subscribers. Exactly one payload
// pointer matching Type is non-nil.
type Event struct {
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	DocumentDownloaded *DocumentDownloaded `json:"document_downloaded,omitempty"`
	ReviewCaseOpened   *ReviewCaseOpened   `json:"review_case_opened,omitempty"`
	CaseEscalated      *CaseEscalated      `json:"case_escalated,omitempty"`
	ExportCompleted    *ExportCompleted    `json:"export_completed,omitempty"`
}

// Publisher accepts events from pipeline stages.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Subscriber receives events. It must be safe to call from the publishing
// goroutine.
type Subscriber func(Event)

// Bus is the in-process Publisher. Subscribers registered at wiring time
// are called synchronously in registration order.
type Bus struct {
	mu    sync.RWMutex
	subs  []Subscriber
	log   *slog.Logger
	clock func() time.Time
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:   log.With("component", "events"),
		clock: time.Now,
	}
}

// WithClock overrides the timestamp source. For tests.
func (b *Bus) WithClock(clock func() time.Time) *Bus {
	b.clock = clock
	return b
}

// Subscribe registers fn for all subsequent events.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish stamps e and delivers it to every subscriber. A subscriber panic
// is recovered and logged; remaining subscribers still run.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.clock().UTC()
	}
	if e.CorrelationID == "" {
		if id, ok := audit.CorrelationIDFrom(ctx); ok {
			e.CorrelationID = id
		}
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, e)
	}
}

func (b *Bus) deliver(fn Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("event subscriber panicked",
				"event_type", e.Type,
				"panic", r)
		}
	}()
	fn(e)
}

// Nop is a Publisher that drops every event.
type Nop struct{}

// Publish discards e.
func (Nop) Publish(context.Context, Event) {}
