package health_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/health"
)

func staticCheck(name string, status health.Status, detail string) health.Check {
	return health.NewCheck(name, func(context.Context) (health.Status, string) {
		return status, detail
	})
}

func TestWorseOrdering(t *testing.T) {
	assert.Equal(t, health.StatusDegraded, health.Worse(health.StatusHealthy, health.StatusDegraded))
	assert.Equal(t, health.StatusUnhealthy, health.Worse(health.StatusDegraded, health.StatusUnhealthy))
	assert.Equal(t, health.StatusUnhealthy, health.Worse(health.StatusUnhealthy, health.StatusHealthy))
	assert.Equal(t, health.StatusUnknown, health.Worse(health.StatusHealthy, health.StatusUnknown))
	assert.Equal(t, health.StatusDegraded, health.Worse(health.StatusUnknown, health.StatusDegraded))
}

func TestGetCurrentHealthWorstComponentWins(t *testing.T) {
	m := health.NewMonitor(nil,
		staticCheck("a", health.StatusHealthy, ""),
		staticCheck("b", health.StatusDegraded, "slow"),
		staticCheck("c", health.StatusHealthy, ""),
	)

	report := m.GetCurrentHealth(context.Background())
	assert.Equal(t, health.StatusDegraded, report.Status)
	require.Len(t, report.Components, 3)
	assert.Equal(t, "b", report.Components[1].Name)
	assert.Equal(t, "slow", report.Components[1].Detail)

	m.Register(staticCheck("d", health.StatusUnhealthy, "down"))
	report = m.GetCurrentHealth(context.Background())
	assert.Equal(t, health.StatusUnhealthy, report.Status)
}

func TestGetCurrentHealthCachesWithinWindow(t *testing.T) {
	var calls atomic.Int32
	counting := health.NewCheck("counting", func(context.Context) (health.Status, string) {
		calls.Add(1)
		return health.StatusHealthy, ""
	})

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	m := health.NewMonitor(nil, counting).WithClock(func() time.Time { return now })

	first := m.GetCurrentHealth(context.Background())
	second := m.GetCurrentHealth(context.Background())
	assert.Equal(t, int32(1), calls.Load(), "second call within the window serves the cache")
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)

	now = now.Add(health.DefaultCacheWindow + time.Second)
	m.GetCurrentHealth(context.Background())
	assert.Equal(t, int32(2), calls.Load(), "a stale cache forces a recompute")

	m.Invalidate()
	m.GetCurrentHealth(context.Background())
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetCurrentHealthNoChecks(t *testing.T) {
	m := health.NewMonitor(nil)
	report := m.GetCurrentHealth(context.Background())
	assert.Equal(t, health.StatusUnknown, report.Status)
	assert.Empty(t, report.Components)
}

func TestPanickingCheckIsUnhealthy(t *testing.T) {
	m := health.NewMonitor(nil, health.NewCheck("bad", func(context.Context) (health.Status, string) {
		panic("boom")
	}))

	report := m.GetCurrentHealth(context.Background())
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	require.Len(t, report.Components, 1)
	assert.Equal(t, "check panicked", report.Components[0].Detail)
}

func TestTempFilesystemCheck(t *testing.T) {
	status, detail := health.TempFilesystemCheck(t.TempDir()).Check(context.Background())
	assert.Equal(t, health.StatusHealthy, status, detail)

	status, _ = health.TempFilesystemCheck("/nonexistent/health-probe-dir").Check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, status)
}

func TestOCRRuntimeCheckMissingBinary(t *testing.T) {
	status, detail := health.OCRRuntimeCheck("definitely-not-a-real-ocr-binary").Check(context.Background())
	assert.Equal(t, health.StatusDegraded, status)
	assert.Contains(t, detail, "not found")
}

func TestDependencyCheck(t *testing.T) {
	up := health.DependencyCheck("storage", func(context.Context) error { return nil })
	status, _ := up.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, status)

	down := health.DependencyCheck("storage", func(context.Context) error { return assert.AnError })
	status, detail := down.Check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, status)
	assert.Equal(t, assert.AnError.Error(), detail)
}

func TestTrackerSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	tracker := health.NewTracker(10 * time.Minute).WithClock(func() time.Time { return now })

	tracker.Observe("extraction", 100*time.Millisecond, 0.9)
	tracker.Observe("extraction", 300*time.Millisecond, 0.7)

	stats := tracker.Snapshot("extraction")
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 200*time.Millisecond, stats.AvgLatency)
	assert.Equal(t, 300*time.Millisecond, stats.MaxLatency)
	assert.InDelta(t, 0.2, stats.PerMinute, 1e-9)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 1e-9)

	// samples age out of the window
	now = now.Add(11 * time.Minute)
	assert.Zero(t, tracker.Snapshot("extraction").Count)
}

func TestTrackerNegativeConfidenceExcluded(t *testing.T) {
	tracker := health.NewTracker(10 * time.Minute)
	tracker.Observe("ingest", time.Second, -1)
	tracker.Observe("ingest", time.Second, 0.5)

	stats := tracker.Snapshot("ingest")
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 0.5, stats.AvgConfidence, 1e-9)
}

func TestPerformanceCheckBreach(t *testing.T) {
	registry := health.NewSLORegistry()
	require.NoError(t, registry.Register(health.SLO{
		Operation:     "extraction",
		MaxAvgLatency: 50 * time.Millisecond,
	}))
	require.Error(t, registry.Register(health.SLO{}), "an SLO needs an operation name")

	tracker := health.NewTracker(10 * time.Minute)
	check := health.PerformanceCheck(registry, tracker)

	status, detail := check.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, status, "no samples means nothing to breach")
	assert.Contains(t, detail, "no samples")

	tracker.Observe("extraction", 200*time.Millisecond, 0.9)
	status, detail = check.Check(context.Background())
	assert.Equal(t, health.StatusDegraded, status)
	assert.Contains(t, detail, "extraction latency")
}

func TestPerformanceCheckConfidenceFloor(t *testing.T) {
	registry := health.NewSLORegistry()
	require.NoError(t, registry.Register(health.SLO{
		Operation:        "classification",
		MinAvgConfidence: 0.6,
	}))

	tracker := health.NewTracker(10 * time.Minute)
	tracker.Observe("classification", time.Millisecond, 0.4)

	status, detail := health.PerformanceCheck(registry, tracker).Check(context.Background())
	assert.Equal(t, health.StatusDegraded, status)
	assert.Contains(t, detail, "confidence")
}
