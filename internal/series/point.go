package series

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidSeries matches every ValidationError.
	ErrInvalidSeries = errors.New("invalid series")
	// ErrInvalidBasePrice is returned by Generate for a non-positive or non-finite base price.
	ErrInvalidBasePrice = errors.New("base price must be a positive finite number")
)

// ValidationError pinpoints the first offending record of a series.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("series: record %d: %s: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSeries }

// Point is a single OHLCV bucket.
type Point struct {
	Time   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Up reports whether the candle closed at or above its open.
func (p Point) Up() bool { return p.Close >= p.Open }

func (p Point) check(index int) error {
	if p.Time.IsZero() {
		return &ValidationError{Index: index, Field: "date", Reason: "missing timestamp"}
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"open", p.Open},
		{"high", p.High},
		{"low", p.Low},
		{"close", p.Close},
		{"volume", p.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{Index: index, Field: f.name, Reason: "not a finite number"}
		}
	}
	for _, f := range fields[:4] {
		if f.v <= 0 {
			return &ValidationError{Index: index, Field: f.name, Reason: "price must be positive"}
		}
	}
	if p.Volume < 0 {
		return &ValidationError{Index: index, Field: "volume", Reason: "volume must not be negative"}
	}
	if p.Low > math.Min(p.Open, p.Close) {
		return &ValidationError{Index: index, Field: "low", Reason: "low above min(open, close)"}
	}
	if p.High < math.Max(p.Open, p.Close) {
		return &ValidationError{Index: index, Field: "high", Reason: "high below max(open, close)"}
	}
	return nil
}

// Series is an immutable, chronologically ordered run of points.
// A nil *Series is a valid empty series.
type Series struct {
	points []Point
}

// New copies points into a new series without validating them.
func New(points []Point) *Series {
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Series{points: cp}
}

// Len returns the number of points.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Empty reports whether the series holds no points.
func (s *Series) Empty() bool { return s.Len() == 0 }

// At returns the i-th point.
func (s *Series) At(i int) Point { return s.points[i] }

// Points returns a copy of the underlying points.
func (s *Series) Points() []Point {
	if s == nil {
		return nil
	}
	cp := make([]Point, len(s.points))
	copy(cp, s.points)
	return cp
}

// Last returns the most recent point.
func (s *Series) Last() (Point, bool) {
	if s.Empty() {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Validate re-checks every point: finite values, positive prices, and the
// high/low envelope. Ordering is checked separately by Sorted.
func (s *Series) Validate() error {
	for i := 0; i < s.Len(); i++ {
		if err := s.points[i].check(i); err != nil {
			return err
		}
	}
	return nil
}

// Sorted reports whether timestamps are strictly increasing.
func (s *Series) Sorted() bool {
	for i := 1; i < s.Len(); i++ {
		if !s.points[i].Time.After(s.points[i-1].Time) {
			return false
		}
	}
	return true
}

// Records renders the series as loosely typed records, the shape Normalize accepts.
func (s *Series) Records() []Record {
	out := make([]Record, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		p := s.points[i]
		out = append(out, Record{
			"date":   p.Time.Format(time.RFC3339Nano),
			"open":   p.Open,
			"high":   p.High,
			"low":    p.Low,
			"close":  p.Close,
			"volume": p.Volume,
		})
	}
	return out
}

func (s *Series) MarshalJSON() ([]byte, error) {
	pts := s.Points()
	if pts == nil {
		pts = []Point{}
	}
	return json.Marshal(pts)
}
