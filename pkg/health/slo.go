package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// SLO bounds the running statistics of one operation. Zero-valued bounds
// are not evaluated.
type SLO struct {
	Operation        string        `json:"operation"`
	MaxAvgLatency    time.Duration `json:"max_avg_latency,omitempty"`
	MinPerMinute     float64       `json:"min_per_minute,omitempty"`
	MinAvgConfidence float64       `json:"min_avg_confidence,omitempty"`
}

// SLORegistry holds the configured SLOs.
type SLORegistry struct {
	mu   sync.Mutex
	slos map[string]SLO
}

// NewSLORegistry creates an empty registry.
func NewSLORegistry() *SLORegistry {
	return &SLORegistry{slos: make(map[string]SLO)}
}

// Register adds or replaces the SLO for an operation.
func (r *SLORegistry) Register(slo SLO) error {
	if slo.Operation == "" {
		return fmt.Errorf("slo requires an operation name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slos[slo.Operation] = slo
	return nil
}

// All returns the registered SLOs ordered by operation name.
func (r *SLORegistry) All() []SLO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SLO, 0, len(r.slos))
	for _, slo := range r.slos {
		out = append(out, slo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// OperationStats summarizes the samples of one operation inside the
// tracking window.
type OperationStats struct {
	Count         int           `json:"count"`
	AvgLatency    time.Duration `json:"avg_latency"`
	MaxLatency    time.Duration `json:"max_latency"`
	PerMinute     float64       `json:"per_minute"`
	AvgConfidence float64       `json:"avg_confidence"`
}

type sample struct {
	at         time.Time
	latency    time.Duration
	confidence float64
}

// DefaultTrackingWindow bounds how far back throughput and latency
// statistics reach.
const DefaultTrackingWindow = 15 * time.Minute

// Tracker accumulates per-operation samples over a sliding window.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples map[string][]sample
	clock   func() time.Time
}

// NewTracker builds a tracker. A non-positive window falls back to the
// default.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultTrackingWindow
	}
	return &Tracker{
		window:  window,
		samples: make(map[string][]sample),
		clock:   time.Now,
	}
}

// WithClock overrides the timestamp source. For tests.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
	return t
}

// Observe records one completed operation. Confidence is on [0,1]; pass a
// negative value when the operation has none.
func (t *Tracker) Observe(operation string, latency time.Duration, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.samples[operation] = append(t.prune(operation, now), sample{
		at:         now,
		latency:    latency,
		confidence: confidence,
	})
}

// Snapshot summarizes the samples of one operation inside the window.
func (t *Tracker) Snapshot(operation string) OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.prune(operation, t.clock())
	t.samples[operation] = kept

	var stats OperationStats
	if len(kept) == 0 {
		return stats
	}
	var latencySum time.Duration
	var confidenceSum float64
	confidenceCount := 0
	for _, s := range kept {
		latencySum += s.latency
		if s.latency > stats.MaxLatency {
			stats.MaxLatency = s.latency
		}
		if s.confidence >= 0 {
			confidenceSum += s.confidence
			confidenceCount++
		}
	}
	stats.Count = len(kept)
	stats.AvgLatency = latencySum / time.Duration(len(kept))
	stats.PerMinute = float64(len(kept)) / t.window.Minutes()
	if confidenceCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(confidenceCount)
	}
	return stats
}

func (t *Tracker) prune(operation string, now time.Time) []sample {
	cutoff := now.Add(-t.window)
	kept := t.samples[operation][:0]
	for _, s := range t.samples[operation] {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// PerformanceCheck compares tracked statistics to the registered SLOs.
// Any breach grades the check Degraded; an operation without samples is
// not evaluated.
func PerformanceCheck(registry *SLORegistry, tracker *Tracker) Check {
	return NewCheck("performance", func(context.Context) (Status, string) {
		var breaches []string
		evaluated := 0
		for _, slo := range registry.All() {
			stats := tracker.Snapshot(slo.Operation)
			if stats.Count == 0 {
				continue
			}
			evaluated++
			if slo.MaxAvgLatency > 0 && stats.AvgLatency > slo.MaxAvgLatency {
				breaches = append(breaches, fmt.Sprintf("%s latency %s over %s",
					slo.Operation, stats.AvgLatency, slo.MaxAvgLatency))
			}
			if slo.MinPerMinute > 0 && stats.PerMinute < slo.MinPerMinute {
				breaches = append(breaches, fmt.Sprintf("%s throughput %.2f/min under %.2f/min",
					slo.Operation, stats.PerMinute, slo.MinPerMinute))
			}
			if slo.MinAvgConfidence > 0 && stats.AvgConfidence < slo.MinAvgConfidence {
				breaches = append(breaches, fmt.Sprintf("%s confidence %.2f under %.2f",
					slo.Operation, stats.AvgConfidence, slo.MinAvgConfidence))
			}
		}
		if len(breaches) > 0 {
			return StatusDegraded, strings.Join(breaches, "; ")
		}
		if evaluated == 0 {
			return StatusHealthy, "no samples in window"
		}
		return StatusHealthy, fmt.Sprintf("%d slo(s) within bounds", evaluated)
	})
}
