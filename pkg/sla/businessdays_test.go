package sla

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddBusinessDays(t *testing.T) {
	cal := NewCalendar()

	// Monday + 5 business days skips the weekend.
	got := cal.AddBusinessDays(date(2025, time.January, 6), 5)
	want := date(2025, time.January, 13)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestAddBusinessDays_SkipsHolidays(t *testing.T) {
	cal := NewCalendar(date(2025, time.January, 9))

	got := cal.AddBusinessDays(date(2025, time.January, 6), 5)
	want := date(2025, time.January, 14)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestAddBusinessDays_ZeroDays(t *testing.T) {
	cal := NewCalendar()
	start := date(2025, time.January, 6)
	if got := cal.AddBusinessDays(start, 0); !got.Equal(start) {
		t.Fatalf("expected start date back, got %s", got)
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	cal := NewCalendar()
	deadline := date(2025, time.January, 13)

	cases := []struct {
		from time.Time
		want int
	}{
		{date(2025, time.January, 6), 5},
		{date(2025, time.January, 8), 3},
		{date(2025, time.January, 10), 1},
		{date(2025, time.January, 11), 1}, // Saturday
		{date(2025, time.January, 13), 0},
		{date(2025, time.January, 14), -1},
	}
	for _, tc := range cases {
		if got := cal.BusinessDaysBetween(tc.from, deadline); got != tc.want {
			t.Errorf("BusinessDaysBetween(%s, deadline) = %d, want %d", tc.from.Format(dateLayout), got, tc.want)
		}
	}
}

func TestBusinessDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	cal := NewCalendar()
	from := time.Date(2025, time.January, 10, 23, 59, 0, 0, time.UTC)
	to := date(2025, time.January, 13)
	if got := cal.BusinessDaysBetween(from, to); got != 1 {
		t.Fatalf("expected 1 business day, got %d", got)
	}
}

func TestIsBusinessDay(t *testing.T) {
	cal := NewCalendar(date(2025, time.May, 1))

	if cal.IsBusinessDay(date(2025, time.January, 11)) {
		t.Error("Saturday should not be a business day")
	}
	if cal.IsBusinessDay(date(2025, time.January, 12)) {
		t.Error("Sunday should not be a business day")
	}
	if cal.IsBusinessDay(date(2025, time.May, 1)) {
		t.Error("holiday should not be a business day")
	}
	if !cal.IsBusinessDay(date(2025, time.January, 10)) {
		t.Error("plain Friday should be a business day")
	}
}

func TestStatutoryCalendar(t *testing.T) {
	cal := StatutoryCalendar(2025, 2025)

	// February, March and November entries are the movable Mondays for 2025.
	fixed := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.February, 3),
		date(2025, time.March, 17),
		date(2025, time.May, 1),
		date(2025, time.September, 16),
		date(2025, time.November, 17),
		date(2025, time.December, 25),
	}
	for _, d := range fixed {
		if !cal.IsHoliday(d) {
			t.Errorf("expected %s to be a holiday", d.Format(dateLayout))
		}
	}
	if cal.IsHoliday(date(2025, time.June, 2)) {
		t.Error("ordinary Monday should not be a holiday")
	}
}

func TestLoadCalendar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	content := "holidays:\n  - \"2025-01-01\"\n  - \"2025-12-25\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cal, err := LoadCalendar(path)
	if err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}
	if !cal.IsHoliday(date(2025, time.January, 1)) {
		t.Error("expected 2025-01-01 to be a holiday")
	}
	if cal.IsHoliday(date(2025, time.January, 2)) {
		t.Error("did not expect 2025-01-02 to be a holiday")
	}
}

func TestLoadCalendar_InvalidDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	if err := os.WriteFile(path, []byte("holidays:\n  - \"not-a-date\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalendar(path); err == nil {
		t.Fatal("expected error for invalid date")
	}
}
