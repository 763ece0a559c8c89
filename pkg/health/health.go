// Package health aggregates component probes, runtime-resource checks and
// SLO comparisons into one service health report. Reports are recomputed on
// demand at most once per cache window; callers in between get the cached
// snapshot.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status grades one component or the whole service.
type Status string

// Health states, ordered from best to worst.
const (
	StatusHealthy   Status = "HEALTHY"
	StatusUnknown   Status = "UNKNOWN"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusUnknown:   1,
	StatusDegraded:  2,
	StatusUnhealthy: 3,
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// CheckResult is one probe's verdict.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Check probes one component or dependency.
type Check interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

type funcCheck struct {
	name string
	fn   func(ctx context.Context) (Status, string)
}

func (c funcCheck) Name() string { return c.name }
func (c funcCheck) Check(ctx context.Context) (Status, string) {
	return c.fn(ctx)
}

// NewCheck adapts a plain function into a Check.
func NewCheck(name string, fn func(ctx context.Context) (Status, string)) Check {
	return funcCheck{name: name, fn: fn}
}

// Report is one full health evaluation. Overall is the worst component
// status.
type Report struct {
	Status      Status        `json:"status"`
	Components  []CheckResult `json:"components"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// DefaultCacheWindow bounds how often a full report is recomputed.
const DefaultCacheWindow = 5 * time.Minute

// Monitor runs the registered checks and caches the resulting report.
// All state lives under one mutex; callers receive value snapshots.
type Monitor struct {
	mu       sync.Mutex
	checks   []Check
	cacheTTL time.Duration
	cached   Report
	hasCache bool
	log      *slog.Logger
	clock    func() time.Time
}

// NewMonitor builds a monitor over checks with the default cache window.
// A nil logger falls back to slog.Default.
func NewMonitor(log *slog.Logger, checks ...Check) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		checks:   checks,
		cacheTTL: DefaultCacheWindow,
		log:      log.With("component", "health"),
		clock:    time.Now,
	}
}

// WithCacheWindow overrides the recompute interval.
func (m *Monitor) WithCacheWindow(d time.Duration) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheTTL = d
	return m
}

// WithClock overrides the timestamp source. For tests.
func (m *Monitor) WithClock(clock func() time.Time) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
	return m
}

// Register adds a check and invalidates the cached report.
func (m *Monitor) Register(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
	m.hasCache = false
}

// Invalidate drops the cached report so the next call recomputes.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasCache = false
}

// GetCurrentHealth returns the cached report when fresh, otherwise runs
// every check and caches the new report. A monitor without checks reports
// Unknown.
func (m *Monitor) GetCurrentHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().UTC()
	if m.hasCache && now.Sub(m.cached.GeneratedAt) < m.cacheTTL {
		return m.cached
	}

	report := Report{
		Status:      StatusHealthy,
		Components:  make([]CheckResult, 0, len(m.checks)),
		GeneratedAt: now,
	}
	if len(m.checks) == 0 {
		report.Status = StatusUnknown
	}
	for _, c := range m.checks {
		result := m.run(ctx, c)
		report.Components = append(report.Components, result)
		report.Status = Worse(report.Status, result.Status)
	}

	m.cached = report
	m.hasCache = true
	if report.Status != StatusHealthy {
		m.log.Warn("health degraded", "status", report.Status)
	}
	return report
}

func (m *Monitor) run(ctx context.Context, c Check) CheckResult {
	start := m.clock()
	result := CheckResult{Name: c.Name(), CheckedAt: start.UTC()}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Status = StatusUnhealthy
				result.Detail = "check panicked"
				m.log.Warn("health check panicked", "check", c.Name(), "panic", r)
			}
		}()
		result.Status, result.Detail = c.Check(ctx)
	}()

	if result.Status == "" {
		result.Status = StatusUnknown
	}
	result.Elapsed = m.clock().Sub(start)
	return result
}
