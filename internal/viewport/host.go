// Package viewport relays container size changes into a chart without
// touching its data, coalescing bursts to at most one flush per frame.
package viewport

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dgnsrekt/candleview/internal/chart"
)

// DefaultFrame is one display refresh at 60Hz.
const DefaultFrame = 16 * time.Millisecond

// Target is the chart being hosted.
type Target interface {
	Viewport() chart.Viewport
	Resize(chart.Viewport) error
}

// Scheduler runs fn once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func())

func afterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Option configures a Host.
type Option func(*Host)

// WithScheduler replaces the time.AfterFunc based frame timer.
func WithScheduler(s Scheduler) Option {
	return func(h *Host) { h.schedule = s }
}

// WithFrame sets the coalescing window.
func WithFrame(d time.Duration) Option {
	return func(h *Host) { h.frame = d }
}

// OnRender is called after each flush with the applied viewport.
func OnRender(fn func(chart.Viewport)) Option {
	return func(h *Host) { h.onRender = fn }
}

// Host observes the width of a chart container.
type Host struct {
	target   Target
	schedule Scheduler
	frame    time.Duration
	onRender func(chart.Viewport)

	mu       sync.Mutex
	width    int
	pending  bool
	cancel   func()
	closed   bool
	flushes  int
}

// NewHost attaches to target, starting from its current width.
func NewHost(target Target, opts ...Option) *Host {
	h := &Host{
		target:   target,
		schedule: afterFunc,
		frame:    DefaultFrame,
		width:    target.Viewport().Width,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Observe records a container width in CSS pixels. Fractional widths are
// rounded; a width equal to the applied or pending one is ignored. It reports
// whether a re-render was scheduled or is still pending because of this call.
func (h *Host) Observe(widthPx float64) bool {
	if math.IsNaN(widthPx) || math.IsInf(widthPx, 0) {
		return false
	}
	w := int(math.Round(widthPx))
	if w < 1 {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if w == h.width {
		return false
	}
	h.width = w
	if !h.pending {
		h.pending = true
		h.cancel = h.schedule(h.frame, h.flush)
	}
	return true
}

func (h *Host) flush() {
	h.mu.Lock()
	if h.closed || !h.pending {
		h.mu.Unlock()
		return
	}
	h.pending = false
	h.cancel = nil
	vp := h.target.Viewport()
	if vp.Width == h.width {
		// the burst ended where it started
		h.mu.Unlock()
		return
	}
	vp.Width = h.width
	h.flushes++
	h.mu.Unlock()

	if err := h.target.Resize(vp); err != nil {
		slog.Warn("viewport resize rejected", "width", vp.Width, "error", err)
		return
	}
	if h.onRender != nil {
		h.onRender(vp)
	}
}

// Flushes counts applied frames.
func (h *Host) Flushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

// Attached reports whether the host still observes its container.
func (h *Host) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Close stops observing and drops any pending frame.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.pending = false
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}
