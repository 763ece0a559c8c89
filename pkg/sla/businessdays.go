package sla

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Calendar knows which days count as business days. Saturdays and Sundays
// never do; holidays are configured per instance.
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar creates a calendar with the given holidays. With no arguments
// only weekends are skipped.
func NewCalendar(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[dateOf(h).Format(dateLayout)] = struct{}{}
	}
	return c
}

// LoadCalendar reads a YAML holiday file of the form:
//
//	holidays:
//	  - "2025-01-01"
//	  - "2025-12-25"
func LoadCalendar(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday calendar: %w", err)
	}

	var cf struct {
		Holidays []string `yaml:"holidays"`
	}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse holiday calendar: %w", err)
	}

	cal := NewCalendar()
	for _, s := range cf.Holidays {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", s, err)
		}
		cal.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return cal, nil
}

// StatutoryCalendar returns the Mexican federal statutory holidays
// (Ley Federal del Trabajo art. 74) for the inclusive year range.
func StatutoryCalendar(fromYear, toYear int) *Calendar {
	cal := NewCalendar()
	for y := fromYear; y <= toYear; y++ {
		for _, d := range statutoryHolidays(y) {
			cal.holidays[d.Format(dateLayout)] = struct{}{}
		}
	}
	return cal
}

func statutoryHolidays(year int) []time.Time {
	return []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		nthWeekday(year, time.February, time.Monday, 1),
		nthWeekday(year, time.March, time.Monday, 3),
		time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.September, 16, 0, 0, 0, 0, time.UTC),
		nthWeekday(year, time.November, time.Monday, 3),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC),
	}
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// IsHoliday reports whether t falls on a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[dateOf(t).Format(dateLayout)]
	return ok
}

// IsBusinessDay reports whether t is a weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	wd := dateOf(t).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// AddBusinessDays advances start by days business days. The returned time
// is the date (midnight UTC) of the deadline; days <= 0 returns the start
// date unchanged.
func (c *Calendar) AddBusinessDays(start time.Time, days int) time.Time {
	d := dateOf(start)
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if c.IsBusinessDay(d) {
			remaining--
		}
	}
	return d
}

// BusinessDaysBetween counts the business days after from up to and
// including to, at date granularity. The count is negative when to is
// before from and zero when they fall on the same date.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	fromD := dateOf(from)
	toD := dateOf(to)
	if fromD.Equal(toD) {
		return 0
	}
	sign := 1
	if toD.Before(fromD) {
		fromD, toD = toD, fromD
		sign = -1
	}
	n := 0
	for d := fromD.AddDate(0, 0, 1); !d.After(toD); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return sign * n
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
