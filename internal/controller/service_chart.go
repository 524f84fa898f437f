package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/series"
	"github.com/dgnsrekt/candleview/internal/timeframe"
	"github.com/dgnsrekt/candleview/internal/types"
)

const sparklinePoints = 20

// PropertyDetail is a property plus stats from its default-timeframe series.
type PropertyDetail struct {
	market.Property
	Timeframe     timeframe.Timeframe `json:"timeframe"`
	LatestPrice   float64             `json:"latest_price"`
	ChangePercent float64             `json:"change_percent"`
}

// SeriesResult is a generated series with summary stats.
type SeriesResult struct {
	PropertyID    string              `json:"property_id"`
	Symbol        string              `json:"symbol"`
	Timeframe     timeframe.Timeframe `json:"timeframe"`
	BasePrice     float64             `json:"base_price"`
	LatestPrice   float64             `json:"latest_price"`
	ChangePercent float64             `json:"change_percent"`
	Points        *series.Series      `json:"points"`
	Sparkline     []series.SparkPoint `json:"sparkline"`
}

// ChartRequest selects what to draw.
type ChartRequest struct {
	PropertyID string
	Timeframe  string
	Width      int
	Height     int
	PixelRatio float64
	Format     string
}

// ChartResult is a rendered frame for one property.
type ChartResult struct {
	PropertyID string              `json:"property_id"`
	Symbol     string              `json:"symbol"`
	Timeframe  timeframe.Timeframe `json:"timeframe"`
	Viewport   chart.Viewport      `json:"viewport"`
	Frame      chart.Frame         `json:"frame"`
}

// OrderBookResult is synthetic depth and trades around a property's price.
type OrderBookResult struct {
	PropertyID string           `json:"property_id"`
	Symbol     string           `json:"symbol"`
	Price      float64          `json:"price"`
	Book       market.OrderBook `json:"book"`
	Spread     string           `json:"spread"`
	Trades     []market.Trade   `json:"trades"`
}

// ListProperties returns every listing.
func (s *Service) ListProperties(ctx context.Context) ([]market.Property, error) {
	return s.deps.Catalog.List(), nil
}

// GetProperty returns a listing with stats from its default timeframe.
func (s *Service) GetProperty(ctx context.Context, id string) (PropertyDetail, error) {
	p, err := s.property(id)
	if err != nil {
		return PropertyDetail{}, err
	}
	tf := s.deps.DefaultTimeframe
	ser, err := s.generate(ctx, p, tf)
	if err != nil {
		return PropertyDetail{}, err
	}
	return PropertyDetail{
		Property:      p,
		Timeframe:     tf,
		LatestPrice:   series.LatestPrice(ser),
		ChangePercent: series.ChangePercent(ser, tf.Days()),
	}, nil
}

// Series generates the candle series for a property and timeframe.
func (s *Service) Series(ctx context.Context, id, rawTimeframe string) (SeriesResult, error) {
	p, err := s.property(id)
	if err != nil {
		return SeriesResult{}, err
	}
	tf, err := s.parseTimeframe(rawTimeframe)
	if err != nil {
		return SeriesResult{}, err
	}
	ser, err := s.generate(ctx, p, tf)
	if err != nil {
		return SeriesResult{}, err
	}
	return SeriesResult{
		PropertyID:    p.ID,
		Symbol:        p.Symbol,
		Timeframe:     tf,
		BasePrice:     p.BasePrice(),
		LatestPrice:   series.LatestPrice(ser),
		ChangePercent: series.ChangePercent(ser, tf.Days()),
		Points:        ser,
		Sparkline:     series.Downsample(ser, sparklinePoints),
	}, nil
}

// RenderChart generates and draws a property's chart. Render failures come
// back inside the frame, not as errors.
func (s *Service) RenderChart(ctx context.Context, req ChartRequest) (ChartResult, error) {
	p, err := s.property(req.PropertyID)
	if err != nil {
		return ChartResult{}, err
	}
	tf, err := s.parseTimeframe(req.Timeframe)
	if err != nil {
		return ChartResult{}, err
	}
	vp, err := s.viewport(req.Width, req.Height, req.PixelRatio)
	if err != nil {
		return ChartResult{}, err
	}
	format, err := chart.ParseFormat(req.Format)
	if err != nil {
		return ChartResult{}, types.NewError(types.CodeValidation, err.Error(), nil)
	}
	ser, err := s.generate(ctx, p, tf)
	if err != nil {
		return ChartResult{}, err
	}

	r := chart.NewRenderer(vp, chart.WithTheme(s.deps.Theme))
	r.SetSeries(ser)
	frame := r.Render(format)

	s.publishChart(p, tf, frame)
	return ChartResult{PropertyID: p.ID, Symbol: p.Symbol, Timeframe: tf, Viewport: vp, Frame: frame}, nil
}

type chartEvent struct {
	PropertyID string              `json:"property_id"`
	Symbol     string              `json:"symbol"`
	Timeframe  timeframe.Timeframe `json:"timeframe"`
	State      chart.State         `json:"state"`
	Format     chart.Format        `json:"format"`
	Domains    *chart.Domains      `json:"domains,omitempty"`
}

func (s *Service) publishChart(p market.Property, tf timeframe.Timeframe, f chart.Frame) {
	if s.deps.Broker == nil {
		return
	}
	evt := chartEvent{PropertyID: p.ID, Symbol: p.Symbol, Timeframe: tf, State: f.State, Format: f.Format, Domains: f.Domains}
	if err := s.deps.Broker.PublishJSON(relay.FeedChart, evt); err != nil {
		slog.Debug("chart event publish failed", "error", err)
	}
}

// OrderBook builds the synthetic book around the property's full listing
// price, not the per-token chart base.
func (s *Service) OrderBook(ctx context.Context, id string) (OrderBookResult, error) {
	p, err := s.property(id)
	if err != nil {
		return OrderBookResult{}, err
	}
	book := s.deps.Book.OrderBook(p.CurrentPrice)
	return OrderBookResult{
		PropertyID: p.ID,
		Symbol:     p.Symbol,
		Price:      p.CurrentPrice,
		Book:       book,
		Spread:     book.Spread().String(),
		Trades:     s.deps.Book.RecentTrades(p.CurrentPrice),
	}, nil
}

// NormalizeSeries validates loosely typed records into a time-ordered
// series. Error indexes refer to the input order.
func (s *Service) NormalizeSeries(ctx context.Context, records []series.Record) (*series.Series, error) {
	ser, err := series.Normalize(records)
	if err != nil {
		return nil, validationError(err)
	}
	if err := ser.Validate(); err != nil {
		return nil, validationError(err)
	}
	return series.SortByTime(ser), nil
}

// RenderRecords normalizes records, sorts them by time, and draws them.
// Records that fail validation produce an invalid frame rather than an error.
func (s *Service) RenderRecords(ctx context.Context, records []series.Record, width, height int, ratio float64, rawFormat string) (chart.Frame, error) {
	vp, err := s.viewport(width, height, ratio)
	if err != nil {
		return chart.Frame{}, err
	}
	format, err := chart.ParseFormat(rawFormat)
	if err != nil {
		return chart.Frame{}, types.NewError(types.CodeValidation, err.Error(), nil)
	}

	r := chart.NewRenderer(vp, chart.WithTheme(s.deps.Theme))
	ser, err := series.Normalize(records)
	if err != nil {
		r.Reject(err)
	} else {
		r.SetSeries(ser)
	}
	return r.Render(format), nil
}

func validationError(err error) error {
	var ve *series.ValidationError
	if errors.As(err, &ve) {
		return types.NewError(types.CodeValidation, fmt.Sprintf("record %d: %s: %s", ve.Index, ve.Field, ve.Reason), err)
	}
	return types.NewError(types.CodeValidation, err.Error(), err)
}
