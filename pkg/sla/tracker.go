// Package sla tracks the legal response deadline of each ingested file.
//
// The tracker computes deadlines in business days from the intake date,
// derives an escalation level from the remaining time at query instant, and
// notifies exactly once per level crossing. Escalation severity never
// decreases for a tracked case.
package sla

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/events"
)

// Level is the escalation severity of a tracked case.
type Level string

// Escalation levels, in increasing severity.
const (
	LevelNone         Level = "NONE"
	LevelEarlyWarning Level = "EARLY_WARNING"
	LevelCritical     Level = "CRITICAL"
	LevelBreached     Level = "BREACHED"
)

// Rank orders levels by severity.
func (l Level) Rank() int {
	switch l {
	case LevelEarlyWarning:
		return 1
	case LevelCritical:
		return 2
	case LevelBreached:
		return 3
	default:
		return 0
	}
}

// Status is the deadline position of one tracked case at a query instant.
type Status struct {
	FileID        string    `json:"file_id"`
	IntakeDate    time.Time `json:"intake_date"`
	Deadline      time.Time `json:"deadline"`
	RemainingDays int       `json:"remaining_days"`
	Level         Level     `json:"level"`
	IsAtRisk      bool      `json:"is_at_risk"`
	IsBreached    bool      `json:"is_breached"`
}

// Config holds the tracker's deadline parameters. Fractions are applied to
// each case's window and rounded up to whole business days.
type Config struct {
	DefaultWindowDays    int     `json:"default_window_days"`
	EarlyWarningFraction float64 `json:"early_warning_fraction"`
	CriticalFraction     float64 `json:"critical_fraction"`
}

// DefaultConfig returns the standard deadline parameters.
func DefaultConfig() Config {
	return Config{
		DefaultWindowDays:    10,
		EarlyWarningFraction: 0.33,
		CriticalFraction:     0.10,
	}
}

type trackedCase struct {
	fileID     string
	intake     time.Time
	windowDays int
	deadline   time.Time
	level      Level // highest level already notified
}

// Tracker watches deadlines for tracked cases. All methods are safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	cases    map[string]*trackedCase
	cal      *Calendar
	cfg      Config
	recorder *audit.Recorder
	bus      events.Publisher
	clock    func() time.Time
}

// NewTracker creates a tracker using cal for business-day math. A nil
// calendar skips weekends only; a nil bus drops escalation events.
func NewTracker(cal *Calendar, cfg Config, recorder *audit.Recorder, bus events.Publisher) *Tracker {
	if cal == nil {
		cal = NewCalendar()
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = DefaultConfig().DefaultWindowDays
	}
	if cfg.EarlyWarningFraction <= 0 {
		cfg.EarlyWarningFraction = DefaultConfig().EarlyWarningFraction
	}
	if cfg.CriticalFraction <= 0 {
		cfg.CriticalFraction = DefaultConfig().CriticalFraction
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Tracker{
		cases:    make(map[string]*trackedCase),
		cal:      cal,
		cfg:      cfg,
		recorder: recorder,
		bus:      bus,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// Track registers or refreshes a case. A windowDays of zero or below falls
// back to the configured default window. The deadline is fixed at track
// time; re-tracking the same file recomputes it.
func (t *Tracker) Track(ctx context.Context, fileID string, intake time.Time, windowDays int) Status {
	_ = ctx
	if windowDays <= 0 {
		windowDays = t.cfg.DefaultWindowDays
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tc, ok := t.cases[fileID]
	if !ok {
		tc = &trackedCase{fileID: fileID, level: LevelNone}
		t.cases[fileID] = tc
	}
	tc.intake = dateOf(intake)
	tc.windowDays = windowDays
	tc.deadline = t.cal.AddBusinessDays(intake, windowDays)

	return t.statusLocked(tc, t.clock())
}

// StatusOf returns the current deadline position of fileID.
func (t *Tracker) StatusOf(ctx context.Context, fileID string) (Status, error) {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()

	tc, ok := t.cases[fileID]
	if !ok {
		return Status{}, fmt.Errorf("sla case %q not found", fileID)
	}
	return t.statusLocked(tc, t.clock()), nil
}

// ActiveCases returns every tracked case, most urgent first.
func (t *Tracker) ActiveCases(ctx context.Context) []Status {
	return t.filter(ctx, func(Status) bool { return true })
}

// AtRiskCases returns cases at EarlyWarning or Critical level.
func (t *Tracker) AtRiskCases(ctx context.Context) []Status {
	return t.filter(ctx, func(s Status) bool { return s.IsAtRisk })
}

// BreachedCases returns cases past their deadline.
func (t *Tracker) BreachedCases(ctx context.Context) []Status {
	return t.filter(ctx, func(s Status) bool { return s.IsBreached })
}

func (t *Tracker) filter(ctx context.Context, keep func(Status) bool) []Status {
	_ = ctx
	t.mu.Lock()
	now := t.clock()
	out := make([]Status, 0, len(t.cases))
	for _, tc := range t.cases {
		if s := t.statusLocked(tc, now); keep(s) {
			out = append(out, s)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}

// EscalateCase raises fileID to level. Raising to the current level or
// below is a no-op: no event is published and no audit record is written,
// so repeated calls leave state identical to one call.
func (t *Tracker) EscalateCase(ctx context.Context, fileID string, level Level) (Status, error) {
	t.mu.Lock()
	tc, ok := t.cases[fileID]
	if !ok {
		t.mu.Unlock()
		return Status{}, fmt.Errorf("sla case %q not found", fileID)
	}

	now := t.clock()
	if level.Rank() <= tc.level.Rank() {
		s := t.statusLocked(tc, now)
		t.mu.Unlock()
		return s, nil
	}

	tc.level = level
	s := t.statusLocked(tc, now)
	t.mu.Unlock()

	t.notify(ctx, s)
	return s, nil
}

// CheckDeadlines scans tracked cases and escalates every case whose
// computed level has passed its recorded one. It returns the statuses
// escalated by this sweep, most urgent first.
func (t *Tracker) CheckDeadlines(ctx context.Context) []Status {
	t.mu.Lock()
	now := t.clock()
	var crossed []Status
	for _, tc := range t.cases {
		computed := t.levelFor(t.cal.BusinessDaysBetween(now, tc.deadline), tc.windowDays)
		if computed.Rank() > tc.level.Rank() {
			tc.level = computed
			crossed = append(crossed, t.statusLocked(tc, now))
		}
	}
	t.mu.Unlock()

	sort.Slice(crossed, func(i, j int) bool {
		if !crossed[i].Deadline.Equal(crossed[j].Deadline) {
			return crossed[i].Deadline.Before(crossed[j].Deadline)
		}
		return crossed[i].FileID < crossed[j].FileID
	})
	for _, s := range crossed {
		t.notify(ctx, s)
	}
	return crossed
}

func (t *Tracker) notify(ctx context.Context, s Status) {
	t.bus.Publish(ctx, events.Event{
		Type: events.TypeCaseEscalated,
		CaseEscalated: &events.CaseEscalated{
			FileID: s.FileID,
			Level:  string(s.Level),
		},
	})
	t.recorder.Record(ctx, audit.ActionReview, audit.StageDecisionLogic, s.FileID, true,
		audit.Details(map[string]any{
			"escalation_level": string(s.Level),
			"deadline":         s.Deadline.Format(dateLayout),
			"remaining_days":   s.RemainingDays,
		}), "")
}

// statusLocked computes the Status of tc at now. Callers hold t.mu.
func (t *Tracker) statusLocked(tc *trackedCase, now time.Time) Status {
	remaining := t.cal.BusinessDaysBetween(now, tc.deadline)
	level := t.levelFor(remaining, tc.windowDays)
	if tc.level.Rank() > level.Rank() {
		level = tc.level
	}
	return Status{
		FileID:        tc.fileID,
		IntakeDate:    tc.intake,
		Deadline:      tc.deadline,
		RemainingDays: remaining,
		Level:         level,
		IsAtRisk:      level == LevelEarlyWarning || level == LevelCritical,
		IsBreached:    level == LevelBreached,
	}
}

func (t *Tracker) levelFor(remaining, window int) Level {
	switch {
	case remaining <= 0:
		return LevelBreached
	case remaining <= thresholdDays(t.cfg.CriticalFraction, window):
		return LevelCritical
	case remaining <= thresholdDays(t.cfg.EarlyWarningFraction, window):
		return LevelEarlyWarning
	default:
		return LevelNone
	}
}

// thresholdDays converts a window fraction into whole business days,
// rounding up so a five-day window with the 0.10 critical fraction still
// yields a one-day critical band.
func thresholdDays(fraction float64, window int) int {
	return int(math.Ceil(fraction * float64(window)))
}
