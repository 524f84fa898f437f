// Package timeframe maps user-selected chart windows to day counts and
// drives series regeneration when the selection changes.
package timeframe

import (
	"fmt"
	"strings"
)

// Timeframe is one of the selectable chart windows.
type Timeframe string

const (
	Day   Timeframe = "1D"
	Week  Timeframe = "1W"
	Month Timeframe = "1M"
	Year  Timeframe = "1Y"
)

var days = map[Timeframe]int{
	Day:   1,
	Week:  7,
	Month: 30,
	Year:  365,
}

// All lists the timeframes in ascending order.
func All() []Timeframe {
	return []Timeframe{Day, Week, Month, Year}
}

// Parse accepts "1D", "1W", "1M" and "1Y", case-insensitively.
func Parse(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := days[tf]; !ok {
		return "", fmt.Errorf("timeframe must be one of 1D, 1W, 1M, 1Y, got %q", s)
	}
	return tf, nil
}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := days[tf]
	return ok
}

// Days returns the day count for tf, or 0 when tf is unknown.
func (tf Timeframe) Days() int {
	return days[tf]
}

func (tf Timeframe) String() string { return string(tf) }
