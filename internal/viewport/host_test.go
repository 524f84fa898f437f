package viewport

import (
	"testing"
	"time"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/series"
)

// manualFrames collects scheduled callbacks so tests decide when a frame ends.
type manualFrames struct {
	pending   []func()
	cancelled int
}

func (m *manualFrames) schedule(_ time.Duration, fn func()) func() {
	m.pending = append(m.pending, fn)
	return func() { m.cancelled++ }
}

func (m *manualFrames) tick() {
	fns := m.pending
	m.pending = nil
	for _, fn := range fns {
		fn()
	}
}

func newTestHost(t *testing.T) (*Host, *chart.Renderer, *manualFrames, *[]chart.Viewport) {
	t.Helper()
	r := chart.NewRenderer(chart.Viewport{Width: 800, Height: 500, PixelRatio: 1})
	frames := &manualFrames{}
	var renders []chart.Viewport
	h := NewHost(r,
		WithScheduler(frames.schedule),
		OnRender(func(vp chart.Viewport) { renders = append(renders, vp) }),
	)
	return h, r, frames, &renders
}

func TestTwoResizesToSameWidthRequestOneRender(t *testing.T) {
	h, r, frames, renders := newTestHost(t)

	h.Observe(400)
	h.Observe(400)
	frames.tick()
	frames.tick()

	if got, want := len(*renders), 1; got != want {
		t.Fatalf("render requests = %d, want %d", got, want)
	}
	if got, want := r.Viewport().Width, 400; got != want {
		t.Fatalf("width = %d, want %d", got, want)
	}
}

func TestBurstCoalescesToLatestWidth(t *testing.T) {
	h, r, frames, renders := newTestHost(t)

	for _, w := range []float64{700, 650, 600, 550} {
		h.Observe(w)
	}
	if got := len(frames.pending); got != 1 {
		t.Fatalf("scheduled frames = %d, want 1", got)
	}
	frames.tick()

	if got := len(*renders); got != 1 {
		t.Fatalf("render requests = %d, want 1", got)
	}
	if got := r.Viewport().Width; got != 550 {
		t.Fatalf("width = %d, want 550", got)
	}
	if got := r.Viewport().Height; got != 500 {
		t.Fatalf("height changed to %d", got)
	}
}

func TestBurstBackToAppliedWidthDoesNotRender(t *testing.T) {
	h, r, frames, renders := newTestHost(t)

	h.Observe(400)
	h.Observe(800)
	frames.tick()

	if got := len(*renders); got != 0 {
		t.Fatalf("render requests = %d, want 0", got)
	}
	if got := h.Flushes(); got != 0 {
		t.Fatalf("flushes = %d, want 0", got)
	}
	if got, want := r.Viewport().Width, 800; got != want {
		t.Fatalf("width = %d, want %d", got, want)
	}

	h.Observe(600)
	frames.tick()
	if got := len(*renders); got != 1 {
		t.Fatalf("render requests after real change = %d, want 1", got)
	}
}

func TestSubPixelChangeIsIgnored(t *testing.T) {
	h, _, frames, renders := newTestHost(t)

	if h.Observe(800.3) {
		t.Fatal("sub-pixel change scheduled a render")
	}
	if h.Observe(799.6) {
		t.Fatal("rounded no-op change scheduled a render")
	}
	frames.tick()
	if len(*renders) != 0 {
		t.Fatalf("render requests = %d, want 0", len(*renders))
	}
}

func TestResizeKeepsSeries(t *testing.T) {
	h, r, frames, _ := newTestHost(t)
	s, err := series.Generate(1000, 4)
	if err != nil {
		t.Fatal(err)
	}
	r.SetSeries(s)

	h.Observe(400)
	frames.tick()

	if r.Series() != s {
		t.Fatal("resize replaced the bound series")
	}
}

func TestCloseDeregisters(t *testing.T) {
	h, _, frames, renders := newTestHost(t)

	h.Observe(640)
	h.Close()
	frames.tick()

	if h.Attached() {
		t.Fatal("Attached() = true after Close")
	}
	if frames.cancelled != 1 {
		t.Fatalf("pending frame cancelled %d times, want 1", frames.cancelled)
	}
	if len(*renders) != 0 {
		t.Fatal("render requested after Close")
	}
	if h.Observe(320) {
		t.Fatal("Observe scheduled work after Close")
	}
	if len(frames.pending) != 0 {
		t.Fatal("frame scheduled after Close")
	}
	h.Close()
}

func TestDefaultSchedulerFlushes(t *testing.T) {
	r := chart.NewRenderer(chart.Viewport{Width: 800, Height: 500, PixelRatio: 1})
	done := make(chan chart.Viewport, 1)
	h := NewHost(r, WithFrame(time.Millisecond), OnRender(func(vp chart.Viewport) { done <- vp }))
	defer h.Close()

	h.Observe(300)
	select {
	case vp := <-done:
		if vp.Width != 300 {
			t.Fatalf("width = %d, want 300", vp.Width)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never flushed")
	}
	if got := h.Flushes(); got != 1 {
		t.Fatalf("Flushes() = %d, want 1", got)
	}
}
