package gamestate

import (
	"fmt"

	"github.com/dotsetgreg/studiogm/pkg/tree"
)

const (
	daysPerMonth   = 30
	monthsPerYear  = 12
	timePath       = "metadata.time"
	minutesPerHour = 60
	hoursPerDay    = 24
)

// Time is the in-game calendar. Months have 30 days.
type Time struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// StartTime is 09:00 on the first day of year.
func StartTime(year int) Time {
	return Time{Year: year, Month: 1, Day: 1, Hour: 9, Minute: 0}
}

// Advance returns t moved forward by minutes, carrying into hours, days,
// months and years. Negative input is ignored.
func (t Time) Advance(minutes int) Time {
	if minutes <= 0 {
		return t
	}
	t.Minute += minutes
	if t.Minute >= minutesPerHour {
		t.Hour += t.Minute / minutesPerHour
		t.Minute %= minutesPerHour
	}
	if t.Hour >= hoursPerDay {
		t.Day += t.Hour / hoursPerDay
		t.Hour %= hoursPerDay
	}
	if t.Day > daysPerMonth {
		t.Month += (t.Day - 1) / daysPerMonth
		t.Day = (t.Day-1)%daysPerMonth + 1
	}
	if t.Month > monthsPerYear {
		t.Year += (t.Month - 1) / monthsPerYear
		t.Month = (t.Month-1)%monthsPerYear + 1
	}
	return t
}

// Format renders the date as "Y-M-D", the label used for history entries and
// short-term memory.
func (t Time) Format() string {
	return fmt.Sprintf("%d-%d-%d", t.Year, t.Month, t.Day)
}

// Clock renders the time of day as "HH:MM".
func (t Time) Clock() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t Time) toTree() map[string]any {
	return map[string]any{
		"year":   float64(t.Year),
		"month":  float64(t.Month),
		"day":    float64(t.Day),
		"hour":   float64(t.Hour),
		"minute": float64(t.Minute),
	}
}

// timeFromTree reads metadata.time. Fields the generator wrote as strings are
// accepted when numeric.
func timeFromTree(doc map[string]any) (Time, bool) {
	raw, ok := tree.Get(doc, timePath)
	if !ok {
		return Time{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Time{}, false
	}
	field := func(name string) int {
		f, _ := tree.AsNumber(m[name])
		return int(f)
	}
	t := Time{
		Year:   field("year"),
		Month:  field("month"),
		Day:    field("day"),
		Hour:   field("hour"),
		Minute: field("minute"),
	}
	if t.Year == 0 {
		return Time{}, false
	}
	return t, true
}
