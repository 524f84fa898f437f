// Package carousel rotates through a gallery of images on a timer owned by
// each gallery instance.
package carousel

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval matches the market page's auto-advance period.
const DefaultInterval = 5 * time.Second

// ErrEmptyGallery is returned by New for a gallery without images.
var ErrEmptyGallery = errors.New("carousel: gallery has no images")

// Trigger records why the index changed.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerNext   Trigger = "next"
	TriggerPrev   Trigger = "prev"
	TriggerSelect Trigger = "select"
)

// State is a point-in-time view of a gallery.
type State struct {
	Gallery string  `json:"gallery"`
	Index   int     `json:"index"`
	Total   int     `json:"total"`
	Image   string  `json:"image"`
	Running bool    `json:"running"`
	Trigger Trigger `json:"trigger,omitempty"`
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithInterval sets the auto-advance period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.interval = d
		}
	}
}

// OnChange is called, outside the rotator's lock, after every index change.
func OnChange(fn func(State)) Option {
	return func(r *Rotator) { r.onChange = fn }
}

// Rotator owns one gallery and its ticker. Manual navigation restarts the
// ticker so the next automatic advance is a full interval away.
type Rotator struct {
	id       string
	images   []string
	interval time.Duration
	onChange func(State)

	mu      sync.Mutex
	index   int
	running bool
	reset   chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// New creates a stopped rotator.
func New(id string, images []string, opts ...Option) (*Rotator, error) {
	if len(images) == 0 {
		return nil, ErrEmptyGallery
	}
	r := &Rotator{
		id:       id,
		images:   append([]string(nil), images...),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ID returns the gallery id.
func (r *Rotator) ID() string { return r.id }

// Start begins auto-rotation. Galleries with a single image never rotate.
// Starting a running rotator is a no-op.
func (r *Rotator) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || len(r.images) < 2 {
		return
	}
	r.running = true
	r.reset = make(chan struct{}, 1)
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})
	go r.loop(time.NewTicker(r.interval), r.reset, r.done, r.stopped)
	slog.Debug("carousel started", "gallery", r.id, "interval", r.interval)
}

func (r *Rotator) loop(t *time.Ticker, reset, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-reset:
			t.Reset(r.interval)
		case <-t.C:
			r.move(1, TriggerAuto)
		}
	}
}

// Stop cancels the ticker and waits for its goroutine to exit.
func (r *Rotator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.done)
	stopped := r.stopped
	r.mu.Unlock()
	<-stopped
	slog.Debug("carousel stopped", "gallery", r.id)
}

// Next advances one image, wrapping to the first.
func (r *Rotator) Next() State { return r.manual(1, TriggerNext) }

// Prev steps back one image, wrapping to the last.
func (r *Rotator) Prev() State { return r.manual(-1, TriggerPrev) }

// Select jumps to index i modulo the gallery size.
func (r *Rotator) Select(i int) State {
	r.mu.Lock()
	delta := i - r.index
	r.mu.Unlock()
	return r.manual(delta, TriggerSelect)
}

func (r *Rotator) manual(delta int, trigger Trigger) State {
	st := r.move(delta, trigger)
	r.mu.Lock()
	if r.running {
		select {
		case r.reset <- struct{}{}:
		default:
		}
	}
	r.mu.Unlock()
	return st
}

func (r *Rotator) move(delta int, trigger Trigger) State {
	r.mu.Lock()
	n := len(r.images)
	r.index = ((r.index+delta)%n + n) % n
	st := r.stateLocked()
	st.Trigger = trigger
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(st)
	}
	return st
}

// State returns the current position.
func (r *Rotator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Rotator) stateLocked() State {
	return State{
		Gallery: r.id,
		Index:   r.index,
		Total:   len(r.images),
		Image:   r.images[r.index],
		Running: r.running,
	}
}
