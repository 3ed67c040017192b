package timeutil

import (
	"time"

	"github.com/jinzhu/now"
)

// Billing location. Calendar dates ("today") are taken from the wall clock here.
var location = mustLoad("Europe/Vienna")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fallback: fixed CET if tzdata is not available
		return time.FixedZone("CET", 60*60)
	}
	return loc
}

// SetLocation switches the location used by Now and Today.
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location = loc
	return nil
}

// Now returns the current time in the billing location
func Now() time.Time {
	return time.Now().In(location)
}

// Today returns the current calendar date in the billing location.
func Today() time.Time {
	return DateOf(Now())
}

// Date builds a calendar date. Dates are always midnight UTC so that they
// compare and round-trip through DATE columns without zone drift.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// DaysIn returns the number of days in t's month.
func DaysIn(t time.Time) int {
	return now.With(DateOf(t)).EndOfMonth().Day()
}

// BeginningOfMonth returns the first day of t's month.
func BeginningOfMonth(t time.Time) time.Time {
	return DateOf(now.With(DateOf(t)).BeginningOfMonth())
}

// AddMonths adds n calendar months, clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	target := Date(t.Year(), t.Month()+time.Month(n), 1)
	day := t.Day()
	if dim := DaysIn(target); day > dim {
		day = dim
	}
	return Date(target.Year(), target.Month(), day)
}

// SameMonth reports whether a and b fall into the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

const (
	DateLayout        = "2006-01-02"
	DisplayDateLayout = "02.01.2006"
	DateTimeLayout    = "02.01.2006 15:04"
)
