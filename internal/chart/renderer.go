// Package chart renders candle series as candlestick charts and keeps the
// per-chart view state (scales, zoom window, crosshair) between renders.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/candleview/internal/series"
	gochart "github.com/wcharczuk/go-chart/v2"
)

// State is the outcome of a render.
type State string

const (
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// Format is the output encoding.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// ParseFormat accepts "svg" (also the empty default) and "png".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "svg":
		return FormatSVG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("format must be \"svg\" or \"png\", got %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/svg+xml"
}

func (f Format) provider() gochart.RendererProvider {
	if f == FormatPNG {
		return gochart.PNG
	}
	return gochart.SVG
}

const defaultDPI = 96.0

var (
	// ErrNotReady is returned by view operations that need a drawable series.
	ErrNotReady = errors.New("chart has no drawable series")
	// ErrEmptyWindow is returned when a zoom window contains no points.
	ErrEmptyWindow = errors.New("zoom window contains no points")
)

// Frame is one rendered image plus the state that produced it.
type Frame struct {
	State       State    `json:"state"`
	Format      Format   `json:"format"`
	ContentType string   `json:"content_type"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Domains     *Domains `json:"domains,omitempty"`
	Tooltip     *Tooltip `json:"tooltip,omitempty"`
	Message     string   `json:"message,omitempty"`
	Image       []byte   `json:"-"`
}

// Tooltip describes the candle under the pointer.
type Tooltip struct {
	Index      int          `json:"index"`
	Point      series.Point `json:"point"`
	Price      float64      `json:"price"`
	CrosshairX float64      `json:"crosshair_x"`
	CrosshairY float64      `json:"crosshair_y"`
}

type crosshair struct {
	at    time.Time
	price float64
}

type window struct {
	from, to time.Time
}

type engineFunc func(c gochart.Chart, rp gochart.RendererProvider, w io.Writer) error

func renderWithGoChart(c gochart.Chart, rp gochart.RendererProvider, w io.Writer) error {
	return c.Render(rp, w)
}

// Renderer owns the view state of one chart. It is safe for concurrent use.
type Renderer struct {
	mu sync.Mutex

	theme    Theme
	colors   palette
	margins  Margins
	viewport Viewport
	engine   engineFunc

	series  *series.Series
	bound   bool
	state   State
	message string
	points  []series.Point
	domains *Domains

	zoom    *window
	visible []series.Point
	view    *Domains
	cross   *crosshair
	renders int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithTheme sets chart colors; empty fields fall back to DefaultTheme.
func WithTheme(t Theme) RendererOption {
	return func(r *Renderer) { r.theme = t.withDefaults() }
}

// WithMargins overrides DefaultMargins.
func WithMargins(m Margins) RendererOption {
	return func(r *Renderer) { r.margins = m }
}

// NewRenderer creates a renderer for the given viewport. An invalid theme is
// replaced by DefaultTheme.
func NewRenderer(vp Viewport, opts ...RendererOption) *Renderer {
	r := &Renderer{
		theme:    DefaultTheme(),
		margins:  DefaultMargins,
		viewport: vp,
		engine:   renderWithGoChart,
		state:    StateEmpty,
		message:  msgEmpty,
	}
	for _, opt := range opts {
		opt(r)
	}
	colors, err := r.theme.palette()
	if err != nil {
		slog.Warn("chart theme rejected, using defaults", "error", err)
		r.theme = DefaultTheme()
		colors, _ = r.theme.palette()
	}
	r.colors = colors
	return r
}

// SetSeries binds a new series. Passing the series already bound is a no-op;
// any other series resets zoom and crosshair and derives fresh domains.
func (r *Renderer) SetSeries(s *series.Series) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bound && s == r.series {
		return
	}
	r.series = s
	r.bound = true
	r.zoom = nil
	r.cross = nil
	r.points = nil
	r.domains = nil
	r.visible = nil
	r.view = nil

	if s.Empty() {
		r.state, r.message = StateEmpty, msgEmpty
		return
	}
	if err := s.Validate(); err != nil {
		slog.Warn("chart series rejected", "error", err)
		r.state, r.message = StateInvalid, msgInvalid
		return
	}

	bound := s
	if !s.Sorted() {
		bound = series.SortByTime(s)
	}
	r.points = bound.Points()
	d := computeDomains(r.points)
	r.domains = &d
	r.visible = r.points
	r.view = r.domains
	r.state, r.message = StateReady, ""
}

// Reject unbinds any series and shows the invalid-data placeholder. It is
// used when records failed to normalize before a series could be built.
func (r *Renderer) Reject(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Warn("chart input rejected", "error", err)
	r.series = nil
	r.bound = false
	r.zoom = nil
	r.cross = nil
	r.points = nil
	r.domains = nil
	r.visible = nil
	r.view = nil
	r.state, r.message = StateInvalid, msgInvalid
}

// Series returns the bound series.
func (r *Renderer) Series() *series.Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.series
}

// State reports how the bound series would render.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Domains returns the extents of the full bound series, or nil when not ready.
func (r *Renderer) Domains() *Domains {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domains == nil {
		return nil
	}
	d := *r.domains
	return &d
}

// Resize changes the drawing surface only. Data, zoom and crosshair survive.
func (r *Renderer) Resize(vp Viewport) error {
	if !vp.Valid() {
		return fmt.Errorf("chart: invalid viewport %+v", vp)
	}
	r.mu.Lock()
	r.viewport = vp
	r.mu.Unlock()
	return nil
}

// Viewport returns the current drawing surface.
func (r *Renderer) Viewport() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

// Scales returns the pixel mapping for the visible window.
func (r *Renderer) Scales() (Scales, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view == nil {
		return Scales{}, false
	}
	return newScales(*r.view, r.viewport, r.margins), true
}

// Zoom narrows the visible window to [from, to]; the price domain follows the window.
func (r *Renderer) Zoom(from, to time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	if to.Before(from) {
		from, to = to, from
	}
	lo := sort.Search(len(r.points), func(i int) bool { return !r.points[i].Time.Before(from) })
	hi := sort.Search(len(r.points), func(i int) bool { return r.points[i].Time.After(to) })
	if lo >= hi {
		return ErrEmptyWindow
	}
	r.zoom = &window{from: from, to: to}
	r.visible = r.points[lo:hi]
	d := computeDomains(r.visible)
	r.view = &d
	if r.cross != nil && (r.cross.at.Before(from) || r.cross.at.After(to)) {
		r.cross = nil
	}
	return nil
}

// ResetZoom shows the whole series again.
func (r *Renderer) ResetZoom() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zoom = nil
	r.visible = r.points
	r.view = r.domains
}

// PointerMove snaps the crosshair to the candle nearest to pixel x and keeps
// the price under pixel y.
func (r *Renderer) PointerMove(x, y float64) (Tooltip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady || len(r.visible) == 0 {
		return Tooltip{}, ErrNotReady
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return Tooltip{}, fmt.Errorf("chart: pointer position must be finite")
	}

	sc := newScales(*r.view, r.viewport, r.margins)
	at := time.UnixMilli(int64(sc.X.Invert(x)))
	idx := nearest(r.visible, at)
	price := sc.Y.Invert(y)
	r.cross = &crosshair{at: r.visible[idx].Time, price: price}
	return r.tooltipLocked(sc), nil
}

// PointerLeave hides the crosshair.
func (r *Renderer) PointerLeave() {
	r.mu.Lock()
	r.cross = nil
	r.mu.Unlock()
}

// Tooltip returns the current crosshair readout in current pixel space.
func (r *Renderer) Tooltip() (Tooltip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cross == nil || r.view == nil {
		return Tooltip{}, false
	}
	return r.tooltipLocked(newScales(*r.view, r.viewport, r.margins)), true
}

func (r *Renderer) tooltipLocked(sc Scales) Tooltip {
	idx := nearest(r.visible, r.cross.at)
	p := r.visible[idx]
	return Tooltip{
		Index:      idx,
		Point:      p,
		Price:      r.cross.price,
		CrosshairX: sc.X.Map(float64(p.Time.UnixMilli())),
		CrosshairY: sc.Y.Map(r.cross.price),
	}
}

func nearest(pts []series.Point, at time.Time) int {
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Time.Before(at) })
	if i == 0 {
		return 0
	}
	if i == len(pts) {
		return len(pts) - 1
	}
	if at.Sub(pts[i-1].Time) <= pts[i].Time.Sub(at) {
		return i - 1
	}
	return i
}

// Renders counts Render calls, placeholders included.
func (r *Renderer) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Render draws the current state. Empty, invalid and failed charts come back
// as placeholder frames rather than errors.
func (r *Renderer) Render(format Format) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++

	scale := 1.0
	if format == FormatPNG {
		scale = r.viewport.PixelRatio
	}
	width := int(math.Round(float64(r.viewport.Width) * scale))
	height := int(math.Round(float64(r.viewport.Height) * scale))

	frame := Frame{
		State:       r.state,
		Format:      format,
		ContentType: format.ContentType(),
		Width:       width,
		Height:      height,
		Message:     r.message,
	}

	if r.state != StateReady {
		frame.Image = r.placeholderLocked(format, width, height, r.message)
		return frame
	}

	// bound points are re-checked before every draw
	if err := series.New(r.visible).Validate(); err != nil {
		slog.Warn("chart points failed re-validation", "error", err)
		frame.State, frame.Message = StateInvalid, msgInvalid
		frame.Image = r.placeholderLocked(format, width, height, msgInvalid)
		return frame
	}

	view := *r.view
	frame.Domains = &view
	if r.cross != nil {
		tt := r.tooltipLocked(newScales(view, r.viewport, r.margins))
		frame.Tooltip = &tt
	}

	img, err := r.drawLocked(format, width, height, scale, view)
	if err != nil {
		slog.Error("chart render failed", "error", err)
		frame.State = StateError
		frame.Message = "Error rendering chart: " + err.Error()
		frame.Domains = nil
		frame.Tooltip = nil
		frame.Image = r.placeholderLocked(format, width, height, frame.Message)
		return frame
	}
	frame.Image = img
	return frame
}

func (r *Renderer) placeholderLocked(format Format, width, height int, message string) []byte {
	img, err := placeholder(format, width, height, r.colors, message)
	if err != nil {
		slog.Error("chart placeholder failed", "error", err)
		return nil
	}
	return img
}

func (r *Renderer) drawLocked(format Format, width, height int, scale float64, view Domains) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("chart library panic: %v", rec)
		}
	}()

	d := view.padded()
	pad := func(v int) int { return int(math.Round(float64(v) * scale)) }
	gridStyle := gochart.Style{StrokeColor: r.colors.grid, StrokeWidth: scale}
	axisStyle := gochart.Style{FontColor: r.colors.text, StrokeColor: r.colors.grid}

	layers := []gochart.Series{
		candlestickSeries{points: r.visible, colors: r.colors, scale: scale},
	}
	if r.cross != nil {
		p := r.visible[nearest(r.visible, r.cross.at)]
		layers = append(layers, crosshairSeries{point: p, price: r.cross.price, colors: r.colors, scale: scale})
	}

	graph := gochart.Chart{
		Width:  width,
		Height: height,
		DPI:    defaultDPI * scale,
		Background: gochart.Style{
			FillColor: r.colors.background,
			Padding: gochart.Box{
				Top:    pad(r.margins.Top),
				Left:   pad(r.margins.Left),
				Right:  pad(r.margins.Right),
				Bottom: pad(r.margins.Bottom),
			},
		},
		Canvas: gochart.Style{FillColor: r.colors.background},
		XAxis: gochart.XAxis{
			Style:          axisStyle,
			ValueFormatter: gochart.TimeValueFormatterWithFormat("2006-01-02"),
			Range: &gochart.ContinuousRange{
				Min: float64(d.TimeMin.UnixNano()),
				Max: float64(d.TimeMax.UnixNano()),
			},
			GridMajorStyle: gridStyle,
		},
		YAxis: gochart.YAxis{
			Style:          axisStyle,
			ValueFormatter: gochart.FloatValueFormatter,
			Range:          &gochart.ContinuousRange{Min: d.PriceMin, Max: d.PriceMax},
			GridMajorStyle: gridStyle,
		},
		Series: layers,
	}

	var buf bytes.Buffer
	if err := r.engine(graph, format.provider(), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
