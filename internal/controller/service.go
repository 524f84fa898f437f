// Package controller implements the chart service behind the HTTP API:
// property lookups, series generation, rendering, galleries and snapshots.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/candleview/internal/carousel"
	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/notify"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/series"
	"github.com/dgnsrekt/candleview/internal/session"
	"github.com/dgnsrekt/candleview/internal/snapshot"
	"github.com/dgnsrekt/candleview/internal/timeframe"
	"github.com/dgnsrekt/candleview/internal/types"
)

// Capturer rasterizes an SVG chart in a browser.
type Capturer interface {
	CaptureSVG(ctx context.Context, svg []byte, vp chart.Viewport) ([]byte, error)
}

// Deps are the collaborators of a Service. Catalog, Book, Snapshots and
// Broker are required; Capturer and Notifier may be nil.
type Deps struct {
	Catalog   *market.Catalog
	Book      *market.Book
	Snapshots *snapshot.Store
	Broker    *relay.Broker
	Capturer  Capturer
	Notifier  *notify.Notifier

	Theme            chart.Theme
	Viewport         chart.Viewport
	DefaultTimeframe timeframe.Timeframe
	CarouselInterval time.Duration
	SnapshotKeep     int

	// SeriesOptions are passed to every series.Generate call.
	SeriesOptions []series.Option
}

// Service wraps chart operations for the API and the scheduler.
type Service struct {
	deps Deps

	mu        sync.Mutex
	galleries map[string]*carousel.Rotator
	closed    bool
}

// NewService fills zero settings with defaults.
func NewService(d Deps) *Service {
	if d.Theme == (chart.Theme{}) {
		d.Theme = chart.DefaultTheme()
	}
	if !d.Viewport.Valid() {
		d.Viewport = chart.Viewport{Width: 800, Height: 500, PixelRatio: 1}
	}
	if !d.DefaultTimeframe.Valid() {
		d.DefaultTimeframe = timeframe.Month
	}
	if d.CarouselInterval <= 0 {
		d.CarouselInterval = carousel.DefaultInterval
	}
	return &Service{deps: d, galleries: make(map[string]*carousel.Rotator)}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return types.NewError(types.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func (s *Service) property(id string) (market.Property, error) {
	if err := s.requireNonEmpty(id, "property_id"); err != nil {
		return market.Property{}, err
	}
	p, err := s.deps.Catalog.Get(id)
	if err != nil {
		return market.Property{}, types.NewError(types.CodePropertyNotFound, fmt.Sprintf("property %q not found", strings.TrimSpace(id)), err)
	}
	return p, nil
}

// parseTimeframe treats an empty value as the configured default.
func (s *Service) parseTimeframe(raw string) (timeframe.Timeframe, error) {
	if strings.TrimSpace(raw) == "" {
		return s.deps.DefaultTimeframe, nil
	}
	tf, err := timeframe.Parse(raw)
	if err != nil {
		return "", types.NewError(types.CodeValidation, err.Error(), nil)
	}
	return tf, nil
}

// viewport overlays non-zero request values on the configured default.
func (s *Service) viewport(width, height int, ratio float64) (chart.Viewport, error) {
	vp := s.deps.Viewport
	if width != 0 {
		vp.Width = width
	}
	if height != 0 {
		vp.Height = height
	}
	if ratio != 0 {
		vp.PixelRatio = ratio
	}
	if !vp.Valid() {
		return chart.Viewport{}, types.NewError(types.CodeValidation, fmt.Sprintf("invalid viewport %dx%d@%v", vp.Width, vp.Height, vp.PixelRatio), nil)
	}
	return vp, nil
}

// Deriver returns the series source for a property.
func (s *Service) Deriver(p market.Property) timeframe.Deriver {
	return timeframe.DeriveFromBase(p.BasePrice(), s.deps.SeriesOptions...)
}

func (s *Service) generate(ctx context.Context, p market.Property, tf timeframe.Timeframe) (*series.Series, error) {
	ser, err := s.Deriver(p)(ctx, tf)
	if err != nil {
		if errors.Is(err, series.ErrInvalidBasePrice) {
			return nil, types.NewError(types.CodeValidation, "property has no usable price", err)
		}
		return nil, err
	}
	return ser, nil
}

// Theme returns the configured chart colors.
func (s *Service) Theme() chart.Theme { return s.deps.Theme }

// DefaultViewport returns the configured chart size.
func (s *Service) DefaultViewport() chart.Viewport { return s.deps.Viewport }

// DefaultTimeframe returns the configured initial timeframe.
func (s *Service) DefaultTimeframe() timeframe.Timeframe { return s.deps.DefaultTimeframe }

// Broker returns the event broker.
func (s *Service) Broker() *relay.Broker { return s.deps.Broker }

// LiveConfig resolves a property for a live chart session.
func (s *Service) LiveConfig(ctx context.Context, id string) (session.Config, error) {
	p, err := s.property(id)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Property:  p,
		Deriver:   s.Deriver(p),
		Theme:     s.deps.Theme,
		Viewport:  s.deps.Viewport,
		Timeframe: s.deps.DefaultTimeframe,
	}, nil
}

// Close stops every gallery timer.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	rotators := make([]*carousel.Rotator, 0, len(s.galleries))
	for _, r := range s.galleries {
		rotators = append(rotators, r)
	}
	s.mu.Unlock()

	for _, r := range rotators {
		r.Stop()
	}
	slog.Debug("service closed", "galleries", len(rotators))
}
