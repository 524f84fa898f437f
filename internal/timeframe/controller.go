package timeframe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/candleview/internal/series"
)

// ErrClosed is returned by Select after Close.
var ErrClosed = errors.New("timeframe controller closed")

// Request tags one regeneration with the selection that spawned it.
type Request struct {
	ID        uint64    `json:"id"`
	Timeframe Timeframe `json:"timeframe"`
}

// Deriver produces the series for a timeframe. It should return promptly
// once ctx is cancelled.
type Deriver func(ctx context.Context, tf Timeframe) (*series.Series, error)

// Publisher receives the series of the current selection.
type Publisher interface {
	Publish(tf Timeframe, s *series.Series)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(tf Timeframe, s *series.Series)

func (f PublisherFunc) Publish(tf Timeframe, s *series.Series) { f(tf, s) }

// DeriveFromBase builds the default Deriver: a synthetic series generated from
// basePrice with one bucket per day of the timeframe.
func DeriveFromBase(basePrice float64, opts ...series.Option) Deriver {
	return func(ctx context.Context, tf Timeframe) (*series.Series, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !tf.Valid() {
			return nil, fmt.Errorf("timeframe: unknown %q", tf)
		}
		return series.Generate(basePrice, tf.Days(), opts...)
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithErrorHandler is called when the current request's derivation fails.
func WithErrorHandler(fn func(Request, error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller holds the current timeframe selection. Results of superseded
// selections are discarded, so the publisher only ever sees the series for
// the most recent Select regardless of completion order.
type Controller struct {
	derive  Deriver
	pub     Publisher
	onError func(Request, error)
	log     *slog.Logger

	mu      sync.Mutex
	pubMu   sync.Mutex
	nextID  uint64
	current Request
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewController creates a controller with no selection.
func NewController(derive Deriver, pub Publisher, opts ...Option) *Controller {
	c := &Controller{
		derive: derive,
		pub:    pub,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select makes tf the current selection and starts deriving its series in the
// background. Any in-flight derivation is cancelled.
func (c *Controller) Select(tf Timeframe) (Request, error) {
	if !tf.Valid() {
		return Request{}, fmt.Errorf("timeframe: unknown %q", tf)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Request{}, ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.nextID++
	req := Request{ID: c.nextID, Timeframe: tf}
	ctx, cancel := context.WithCancel(context.Background())
	c.current = req
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("timeframe selected", "request_id", req.ID, "timeframe", tf)
	go c.run(ctx, req)
	return req, nil
}

func (c *Controller) run(ctx context.Context, req Request) {
	defer c.wg.Done()

	s, err := c.derive(ctx, req.Timeframe)

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if !c.isCurrent(req) {
		c.log.Debug("discarding superseded series", "request_id", req.ID, "timeframe", req.Timeframe)
		return
	}
	if err != nil {
		c.log.Warn("series derivation failed", "request_id", req.ID, "timeframe", req.Timeframe, "error", err)
		if c.onError != nil {
			c.onError(req, err)
		}
		return
	}
	c.pub.Publish(req.Timeframe, s)
}

func (c *Controller) isCurrent(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.current.ID == req.ID
}

// Current returns the most recent request, or the zero Request before any Select.
func (c *Controller) Current() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Wait blocks until every started derivation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight work and waits for it. Later results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
