package engine

import "time"

// Clock abstracts time.Now() to allow deterministic testing.
// The Resolver uses it to determine "today" and the Loop uses it to stamp ticks.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// civilDay is a calendar date without time or location.
type civilDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) civilDay {
	y, m, d := t.Date()
	return civilDay{year: y, month: m, day: d}
}

// after reports whether d is a strictly later calendar day than o.
func (d civilDay) after(o civilDay) bool {
	if d.year != o.year {
		return d.year > o.year
	}
	if d.month != o.month {
		return d.month > o.month
	}
	return d.day > o.day
}

// unixDays counts days since 1970-01-01 for the calendar date, ignoring DST.
func (d civilDay) unixDays() int64 {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

const secondsPerDay = 24 * 60 * 60
