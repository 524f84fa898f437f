package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/candleview/internal/carousel"
	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/controller"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/series"
	"github.com/dgnsrekt/candleview/internal/snapshot"
	"github.com/dgnsrekt/candleview/internal/types"
)

type Service interface {
	ListProperties(ctx context.Context) ([]market.Property, error)
	GetProperty(ctx context.Context, id string) (controller.PropertyDetail, error)
	Series(ctx context.Context, id, timeframe string) (controller.SeriesResult, error)
	RenderChart(ctx context.Context, req controller.ChartRequest) (controller.ChartResult, error)
	OrderBook(ctx context.Context, id string) (controller.OrderBookResult, error)
	NormalizeSeries(ctx context.Context, records []series.Record) (*series.Series, error)
	RenderRecords(ctx context.Context, records []series.Record, width, height int, ratio float64, format string) (chart.Frame, error)
	GetGallery(ctx context.Context, id string) (carousel.State, error)
	NextImage(ctx context.Context, id string) (carousel.State, error)
	PrevImage(ctx context.Context, id string) (carousel.State, error)
	SelectImage(ctx context.Context, id string, index int) (carousel.State, error)
	TakeSnapshot(ctx context.Context, req controller.SnapshotRequest) (snapshot.Meta, error)
	ListSnapshots(ctx context.Context, property string) ([]snapshot.Meta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, snapshot.Meta, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// Option adds optional routes to the server.
type Option func(chi.Router)

// WithStream serves broker events as SSE at /api/v1/stream.
func WithStream(b *relay.Broker) Option {
	return func(r chi.Router) { r.Get("/api/v1/stream", relay.SSEHandler(b)) }
}

// WithLive serves live chart sessions at /api/v1/live.
func WithLive(h http.Handler) Option {
	return func(r chi.Router) { r.Handle("/api/v1/live", h) }
}

type propertyIDInput struct {
	PropertyID string `path:"property_id" doc:"Property id or symbol" example:"KAREN-VILLAS"`
}

type chartInput struct {
	PropertyID string  `path:"property_id"`
	Timeframe  string  `query:"timeframe" doc:"1D, 1W, 1M or 1Y. Defaults to the configured timeframe." example:"1M"`
	Width      int     `query:"width" doc:"CSS pixel width. Defaults to the configured width." minimum:"0"`
	Height     int     `query:"height" doc:"CSS pixel height. Defaults to the configured height." minimum:"0"`
	PixelRatio float64 `query:"pixel_ratio" doc:"Device pixel ratio applied to PNG output." minimum:"0"`
	Format     string  `query:"format" doc:"svg (default) or png"`
}

func NewServer(svc Service, opts ...Option) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Candleview API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api)
	registerMarketHandlers(api, svc)
	registerChartHandlers(api, svc)
	registerGalleryHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	for _, opt := range opts {
		opt(router)
	}
	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodePropertyNotFound, types.CodeSnapshotNotFound, types.CodeGalleryNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeUpstreamTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case types.CodeBrowserUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
