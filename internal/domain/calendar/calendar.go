// Package calendar handles civil (date-only) values used across the domain.
//
// A civil date is represented as a time.Time at midnight UTC so that it
// compares and round-trips cleanly through PostgreSQL DATE columns.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire and storage format for civil dates.
const Layout = "2006-01-02"

// Day truncates t to its calendar date as seen in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Format renders a civil date as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}
