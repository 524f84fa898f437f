package chart

import (
	"math"
	"time"

	"github.com/dgnsrekt/candleview/internal/series"
)

// Viewport is the pixel size and density of the drawing surface.
type Viewport struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixelRatio float64 `json:"pixel_ratio"`
}

// Valid reports whether the viewport can be drawn into.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 && v.PixelRatio > 0 &&
		!math.IsNaN(v.PixelRatio) && !math.IsInf(v.PixelRatio, 0)
}

// Margins reserve room around the plot area for axes.
type Margins struct {
	Top, Right, Bottom, Left int
}

// DefaultMargins leave space for a price axis on the right and dates below.
var DefaultMargins = Margins{Top: 20, Right: 70, Bottom: 40, Left: 70}

// Domains are the data extents a chart is drawn over.
type Domains struct {
	TimeMin  time.Time `json:"time_min"`
	TimeMax  time.Time `json:"time_max"`
	PriceMin float64   `json:"price_min"`
	PriceMax float64   `json:"price_max"`
}

// computeDomains expects a non-empty, validated slice.
func computeDomains(pts []series.Point) Domains {
	d := Domains{
		TimeMin:  pts[0].Time,
		TimeMax:  pts[0].Time,
		PriceMin: pts[0].Low,
		PriceMax: pts[0].High,
	}
	for _, p := range pts[1:] {
		if p.Time.Before(d.TimeMin) {
			d.TimeMin = p.Time
		}
		if p.Time.After(d.TimeMax) {
			d.TimeMax = p.Time
		}
		d.PriceMin = math.Min(d.PriceMin, p.Low)
		d.PriceMax = math.Max(d.PriceMax, p.High)
	}
	return d
}

// padded widens zero-width extents so scales never divide by zero.
func (d Domains) padded() Domains {
	if !d.TimeMax.After(d.TimeMin) {
		d.TimeMin = d.TimeMin.Add(-12 * time.Hour)
		d.TimeMax = d.TimeMax.Add(12 * time.Hour)
	}
	if d.PriceMax <= d.PriceMin {
		pad := math.Max(math.Abs(d.PriceMin)*0.01, 0.01)
		d.PriceMin -= pad
		d.PriceMax += pad
	}
	return d
}

// LinearScale maps a continuous domain onto a pixel range.
type LinearScale struct {
	DomainMin float64 `json:"domain_min"`
	DomainMax float64 `json:"domain_max"`
	RangeMin  float64 `json:"range_min"`
	RangeMax  float64 `json:"range_max"`
}

// Map converts a domain value to pixels.
func (s LinearScale) Map(v float64) float64 {
	span := s.DomainMax - s.DomainMin
	if span == 0 {
		return s.RangeMin
	}
	return s.RangeMin + (v-s.DomainMin)/span*(s.RangeMax-s.RangeMin)
}

// Invert converts pixels back to a domain value.
func (s LinearScale) Invert(px float64) float64 {
	span := s.RangeMax - s.RangeMin
	if span == 0 {
		return s.DomainMin
	}
	return s.DomainMin + (px-s.RangeMin)/span*(s.DomainMax-s.DomainMin)
}

// Scales pairs the time (X, unix milliseconds) and price (Y) scales.
type Scales struct {
	X LinearScale `json:"x"`
	Y LinearScale `json:"y"`
}

func newScales(d Domains, vp Viewport, m Margins) Scales {
	d = d.padded()
	return Scales{
		X: LinearScale{
			DomainMin: float64(d.TimeMin.UnixMilli()),
			DomainMax: float64(d.TimeMax.UnixMilli()),
			RangeMin:  float64(m.Left),
			RangeMax:  float64(vp.Width - m.Right),
		},
		Y: LinearScale{
			DomainMin: d.PriceMin,
			DomainMax: d.PriceMax,
			RangeMin:  float64(vp.Height - m.Bottom),
			RangeMax:  float64(m.Top),
		},
	}
}
