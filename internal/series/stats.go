package series

import "math"

// LatestPrice returns the last close, or 0 for an empty series.
func LatestPrice(s *Series) float64 {
	p, ok := s.Last()
	if !ok {
		return 0
	}
	return p.Close
}

// ChangePercent compares the last close with the close `days` points earlier.
// It returns 0 when the series is too short.
func ChangePercent(s *Series, days int) float64 {
	n := s.Len()
	if days < 1 || n <= days {
		return 0
	}
	current := s.points[n-1].Close
	past := s.points[n-1-days].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past * 100
}

// SparkPoint is a reduced close-only sample.
type SparkPoint struct {
	Label string  `json:"date"`
	Price float64 `json:"price"`
}

// Downsample keeps every ceil(len/n)-th close plus the last one.
func Downsample(s *Series, n int) []SparkPoint {
	total := s.Len()
	if total == 0 || n < 1 {
		return []SparkPoint{}
	}
	step := int(math.Ceil(float64(total) / float64(n)))
	out := make([]SparkPoint, 0, n+1)
	for i := 0; i < total; i++ {
		if i%step != 0 && i != total-1 {
			continue
		}
		p := s.points[i]
		out = append(out, SparkPoint{Label: p.Time.Format("Jan 02"), Price: p.Close})
	}
	return out
}
