package series

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is one loosely typed OHLCV record, usually decoded from JSON.
type Record map[string]any

var dateKeys = []string{"date", "time", "timestamp"}

// unix values above this are taken as milliseconds
const millisThreshold = 1e11

// maxUnixMillis is the largest instant a JavaScript Date can hold.
const maxUnixMillis = 8.64e15

// DecodeRecords reads a JSON array of records. Numbers are kept as json.Number
// so Normalize sees the literal text.
func DecodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []Record
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("series: decode records: %w", err)
	}
	return raw, nil
}

// Normalize coerces raw records into a typed series. It rejects the first
// record with a missing, unparseable or non-finite field. Input order is kept;
// use SortByTime when the source order is not trusted. An empty input yields
// an empty series and no error.
func Normalize(raw []Record) (*Series, error) {
	points := make([]Point, 0, len(raw))
	for i, rec := range raw {
		p, err := normalizeRecord(i, rec)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return &Series{points: points}, nil
}

func normalizeRecord(index int, rec Record) (Point, error) {
	if rec == nil {
		return Point{}, &ValidationError{Index: index, Field: "record", Reason: "null record"}
	}

	var (
		ts    time.Time
		found bool
		err   error
	)
	for _, key := range dateKeys {
		v, ok := rec[key]
		if !ok {
			continue
		}
		found = true
		ts, err = coerceTime(v)
		if err != nil {
			return Point{}, &ValidationError{Index: index, Field: key, Reason: err.Error()}
		}
		break
	}
	if !found {
		return Point{}, &ValidationError{Index: index, Field: "date", Reason: "missing"}
	}

	p := Point{Time: ts}
	targets := []struct {
		name string
		dst  *float64
	}{
		{"open", &p.Open},
		{"high", &p.High},
		{"low", &p.Low},
		{"close", &p.Close},
		{"volume", &p.Volume},
	}
	for _, t := range targets {
		v, ok := rec[t.name]
		if !ok {
			return Point{}, &ValidationError{Index: index, Field: t.name, Reason: "missing"}
		}
		f, err := coerceFloat(v)
		if err != nil {
			return Point{}, &ValidationError{Index: index, Field: t.name, Reason: err.Error()}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Point{}, &ValidationError{Index: index, Field: t.name, Reason: "not a finite number"}
		}
		*t.dst = f
	}
	return p, nil
}

func coerceFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return parseNumber(string(n))
	case string:
		return parseNumber(n)
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat accepts "NaN" and "Inf"; anything else is garbage.
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("zero time")
		}
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return unixTime(s)
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	case json.Number:
		return unixTime(string(t))
	default:
		f, err := coerceFloat(v)
		if err != nil {
			return time.Time{}, err
		}
		return unixTime(strconv.FormatFloat(f, 'f', -1, 64))
	}
}

func unixTime(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a timestamp: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("not a finite timestamp")
	}
	if math.Abs(f) > maxUnixMillis {
		return time.Time{}, fmt.Errorf("timestamp out of range")
	}
	if math.Abs(f) > millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// SortByTime returns a new series ordered by timestamp. Equal timestamps keep
// their input order.
func SortByTime(s *Series) *Series {
	pts := s.Points()
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
	return &Series{points: pts}
}
