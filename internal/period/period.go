// Package period provides first-of-month UTC date arithmetic shared by the
// activity and churn packages.
package period

import (
	"fmt"
	"time"
)

// Layout is the wire format for months in APIs and logs.
const Layout = "2006-01"

// DateLayout is the format used by source data columns.
const DateLayout = "2006-01-02"

// Normalize truncates t to the first day of its month in UTC.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Parse reads a YYYY-MM month string.
func Parse(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("period: empty month")
	}
	t, err := time.ParseInLocation(Layout, value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return Normalize(t), nil
}

// ParseDate reads a YYYY-MM-DD date string and normalizes it to its month.
// The date must already be the first of the month.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if t.Day() != 1 {
		return time.Time{}, fmt.Errorf("period: %s is not the first of the month", value)
	}
	return Normalize(t), nil
}

// Format renders a month as YYYY-MM.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Next returns the month following t.
func Next(t time.Time) time.Time {
	return Normalize(t).AddDate(0, 1, 0)
}

// Prev returns the month preceding t.
func Prev(t time.Time) time.Time {
	return Normalize(t).AddDate(0, -1, 0)
}

// Add shifts t by n months.
func Add(t time.Time, n int) time.Time {
	return Normalize(t).AddDate(0, n, 0)
}

// Enumerate lists every month from from to to inclusive.
func Enumerate(from, to time.Time) []time.Time {
	if from.After(to) {
		return nil
	}
	var months []time.Time
	current := Normalize(from)
	end := Normalize(to)
	for !current.After(end) {
		months = append(months, current)
		current = current.AddDate(0, 1, 0)
	}
	return months
}

// Span counts the months from from to to inclusive. A negative span means
// from lies after to.
func Span(from, to time.Time) int {
	f := Normalize(from)
	t := Normalize(to)
	return (t.Year()-f.Year())*12 + int(t.Month()) - int(f.Month()) + 1
}
