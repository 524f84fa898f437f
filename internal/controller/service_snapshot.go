package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/snapshot"
	"github.com/dgnsrekt/candleview/internal/types"
)

// Snapshot image sources.
const (
	SourceRenderer = "renderer"
	SourceBrowser  = "browser"
)

// SnapshotRequest selects the chart to store.
type SnapshotRequest struct {
	ChartRequest
	// Source forces SourceBrowser or SourceRenderer. Empty prefers the
	// browser for PNG and falls back to the renderer.
	Source string
	// Trigger names who asked for the snapshot, e.g. "api" or "schedule".
	Trigger string
}

type snapshotEvent struct {
	Meta    snapshot.Meta `json:"meta"`
	Trigger string        `json:"trigger,omitempty"`
}

// TakeSnapshot renders a chart and stores it. PNG snapshots go through the
// browser when one is configured and fall back to the built-in rasterizer.
func (s *Service) TakeSnapshot(ctx context.Context, req SnapshotRequest) (snapshot.Meta, error) {
	p, err := s.property(req.PropertyID)
	if err != nil {
		return snapshot.Meta{}, err
	}
	tf, err := s.parseTimeframe(req.Timeframe)
	if err != nil {
		return snapshot.Meta{}, err
	}
	vp, err := s.viewport(req.Width, req.Height, req.PixelRatio)
	if err != nil {
		return snapshot.Meta{}, err
	}
	format, err := chart.ParseFormat(req.Format)
	if err != nil {
		return snapshot.Meta{}, types.NewError(types.CodeValidation, err.Error(), nil)
	}
	if err := s.checkSource(req.Source, format); err != nil {
		return snapshot.Meta{}, err
	}
	ser, err := s.generate(ctx, p, tf)
	if err != nil {
		return snapshot.Meta{}, err
	}

	r := chart.NewRenderer(vp, chart.WithTheme(s.deps.Theme))
	r.SetSeries(ser)

	frame, source, err := s.capture(ctx, r, format, vp, req.Source)
	if err != nil {
		return snapshot.Meta{}, err
	}
	if frame.State == chart.StateError {
		return snapshot.Meta{}, types.NewError(types.CodeRenderFailure, frame.Message, nil)
	}

	meta, err := s.deps.Snapshots.Save(snapshot.Meta{
		ID:         snapshot.NewID(),
		PropertyID: p.ID,
		Symbol:     p.Symbol,
		Timeframe:  tf.String(),
		Format:     string(frame.Format),
		Width:      frame.Width,
		Height:     frame.Height,
		PixelRatio: vp.PixelRatio,
		State:      string(frame.State),
		Source:     source,
	}, frame.Image)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("save snapshot: %w", err)
	}

	if s.deps.Broker != nil {
		if err := s.deps.Broker.PublishJSON(relay.FeedSnapshot, snapshotEvent{Meta: meta, Trigger: req.Trigger}); err != nil {
			slog.Debug("snapshot event publish failed", "id", meta.ID, "error", err)
		}
	}
	slog.Info("snapshot saved", "id", meta.ID, "property_id", p.ID, "timeframe", tf,
		"format", meta.Format, "source", source, "bytes", meta.SizeBytes)
	return meta, nil
}

func (s *Service) checkSource(source string, format chart.Format) error {
	switch source {
	case "", SourceRenderer:
		return nil
	case SourceBrowser:
		if format != chart.FormatPNG {
			return types.NewError(types.CodeValidation, "browser snapshots must be png", nil)
		}
		if s.deps.Capturer == nil {
			return types.NewError(types.CodeBrowserUnavailable, "browser capture is not configured", nil)
		}
		return nil
	default:
		return types.NewError(types.CodeValidation, fmt.Sprintf("unknown snapshot source %q", source), nil)
	}
}

// capture renders through the browser for ready PNG frames when possible.
// Only a forced browser source turns a capture failure into an error.
func (s *Service) capture(ctx context.Context, r *chart.Renderer, format chart.Format, vp chart.Viewport, source string) (chart.Frame, string, error) {
	if source == SourceRenderer || format != chart.FormatPNG || s.deps.Capturer == nil || r.State() != chart.StateReady {
		return r.Render(format), SourceRenderer, nil
	}

	svg := r.Render(chart.FormatSVG)
	if svg.State != chart.StateReady {
		return r.Render(format), SourceRenderer, nil
	}
	img, err := s.deps.Capturer.CaptureSVG(ctx, svg.Image, vp)
	if err != nil {
		if source == SourceBrowser {
			return chart.Frame{}, "", captureError(err)
		}
		slog.Warn("browser capture failed, using built-in rasterizer", "error", err)
		return r.Render(format), SourceRenderer, nil
	}

	frame := svg
	frame.Format = chart.FormatPNG
	frame.ContentType = chart.FormatPNG.ContentType()
	frame.Width = int(float64(vp.Width) * vp.PixelRatio)
	frame.Height = int(float64(vp.Height) * vp.PixelRatio)
	frame.Image = img
	return frame, SourceBrowser, nil
}

func captureError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.CodeUpstreamTimeout, "browser capture timed out", err)
	}
	return types.NewError(types.CodeBrowserUnavailable, "browser capture failed", err)
}

// ListSnapshots returns stored snapshots, newest first, optionally filtered
// by property id or symbol.
func (s *Service) ListSnapshots(ctx context.Context, property string) ([]snapshot.Meta, error) {
	all, err := s.deps.Snapshots.List()
	if err != nil {
		return nil, err
	}
	property = strings.TrimSpace(property)
	if property == "" {
		return all, nil
	}
	p, err := s.property(property)
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.Meta, 0, len(all))
	for _, m := range all {
		if m.PropertyID == p.ID {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetSnapshot returns one snapshot's metadata.
func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return snapshot.Meta{}, err
	}
	meta, err := s.deps.Snapshots.Get(id)
	if err != nil {
		return snapshot.Meta{}, snapshotError(id, err)
	}
	return meta, nil
}

// ReadSnapshotImage returns a snapshot's image bytes.
func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, snapshot.Meta, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return nil, snapshot.Meta{}, err
	}
	img, meta, err := s.deps.Snapshots.ReadImage(id)
	if err != nil {
		return nil, snapshot.Meta{}, snapshotError(id, err)
	}
	return img, meta, nil
}

// DeleteSnapshot removes a snapshot.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return err
	}
	if err := s.deps.Snapshots.Delete(id); err != nil {
		return snapshotError(id, err)
	}
	return nil
}

// PruneSnapshots keeps the newest configured number of snapshots.
func (s *Service) PruneSnapshots(ctx context.Context) (int, error) {
	if s.deps.SnapshotKeep <= 0 {
		return 0, nil
	}
	return s.deps.Snapshots.Prune(s.deps.SnapshotKeep)
}

// Notify sends message when a notifier is configured.
func (s *Service) Notify(ctx context.Context, message string) error {
	if s.deps.Notifier == nil || !s.deps.Notifier.Enabled() {
		return nil
	}
	return s.deps.Notifier.Notify(ctx, message)
}

func snapshotError(id string, err error) error {
	if errors.Is(err, snapshot.ErrNotFound) {
		return types.NewError(types.CodeSnapshotNotFound, fmt.Sprintf("snapshot %q not found", id), err)
	}
	if errors.Is(err, snapshot.ErrInvalidID) {
		return types.NewError(types.CodeValidation, err.Error(), err)
	}
	return err
}
