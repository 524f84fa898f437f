package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/candleview/internal/carousel"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/types"
)

// gallery returns the rotator for a property, creating it on first use.
// Galleries are keyed by property id.
func (s *Service) gallery(id string) (*carousel.Rotator, error) {
	p, err := s.property(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.galleries[p.ID]; ok {
		return r, nil
	}
	if s.closed {
		return nil, types.NewError(types.CodeGalleryNotFound, "service is shutting down", nil)
	}
	r, err := carousel.New(p.ID, p.Images,
		carousel.WithInterval(s.deps.CarouselInterval),
		carousel.OnChange(s.publishGallery),
	)
	if err != nil {
		return nil, types.NewError(types.CodeGalleryNotFound, fmt.Sprintf("property %q has no images", p.ID), err)
	}
	s.galleries[p.ID] = r
	r.Start()
	slog.Debug("gallery started", "property_id", p.ID, "images", len(p.Images))
	return r, nil
}

func (s *Service) publishGallery(st carousel.State) {
	if s.deps.Broker == nil {
		return
	}
	if err := s.deps.Broker.PublishJSON(relay.FeedGallery, st); err != nil {
		slog.Debug("gallery event publish failed", "gallery", st.Gallery, "error", err)
	}
}

// GetGallery returns a property's gallery state.
func (s *Service) GetGallery(ctx context.Context, id string) (carousel.State, error) {
	r, err := s.gallery(id)
	if err != nil {
		return carousel.State{}, err
	}
	return r.State(), nil
}

// NextImage advances a gallery and restarts its timer.
func (s *Service) NextImage(ctx context.Context, id string) (carousel.State, error) {
	r, err := s.gallery(id)
	if err != nil {
		return carousel.State{}, err
	}
	return r.Next(), nil
}

// PrevImage steps a gallery back and restarts its timer.
func (s *Service) PrevImage(ctx context.Context, id string) (carousel.State, error) {
	r, err := s.gallery(id)
	if err != nil {
		return carousel.State{}, err
	}
	return r.Prev(), nil
}

// SelectImage jumps to index, wrapping out-of-range values.
func (s *Service) SelectImage(ctx context.Context, id string, index int) (carousel.State, error) {
	r, err := s.gallery(id)
	if err != nil {
		return carousel.State{}, err
	}
	return r.Select(index), nil
}

// StartGalleries creates a rotator for every property that has images.
func (s *Service) StartGalleries() int {
	started := 0
	for _, p := range s.deps.Catalog.List() {
		if len(p.Images) == 0 {
			continue
		}
		if _, err := s.gallery(p.ID); err != nil {
			slog.Warn("gallery start failed", "property_id", p.ID, "error", err)
			continue
		}
		started++
	}
	return started
}
