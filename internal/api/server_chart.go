package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/controller"
	"github.com/dgnsrekt/candleview/internal/series"
)

type chartImageOutput struct {
	ContentType string `header:"Content-Type"`
	State       string `header:"X-Chart-State"`
	Message     string `header:"X-Chart-Message"`
	Body        []byte
}

func imageOutput(f chart.Frame) *chartImageOutput {
	return &chartImageOutput{ContentType: f.ContentType, State: string(f.State), Message: f.Message, Body: f.Image}
}

func imageResponses() map[string]*huma.Response {
	return map[string]*huma.Response{
		"200": {
			Description: "Chart image. Empty, invalid and failed charts are placeholder images; X-Chart-State says which.",
			Content: map[string]*huma.MediaType{
				"image/svg+xml": {Schema: &huma.Schema{Type: "string"}},
				"image/png":     {Schema: &huma.Schema{Type: "string", Format: "binary"}},
			},
		},
	}
}

func registerChartHandlers(api huma.API, svc Service) {
	toRequest := func(in *chartInput) controller.ChartRequest {
		return controller.ChartRequest{
			PropertyID: in.PropertyID,
			Timeframe:  in.Timeframe,
			Width:      in.Width,
			Height:     in.Height,
			PixelRatio: in.PixelRatio,
			Format:     in.Format,
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-chart-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/properties/{property_id}/chart",
		Summary:     "Render candlestick chart",
		Tags:        []string{"Chart"},
		Responses:   imageResponses(),
	}, func(ctx context.Context, input *chartInput) (*chartImageOutput, error) {
		res, err := svc.RenderChart(ctx, toRequest(input))
		if err != nil {
			return nil, mapErr(err)
		}
		return imageOutput(res.Frame), nil
	})

	type chartFrameOutput struct {
		Body controller.ChartResult
	}
	huma.Register(api, huma.Operation{OperationID: "get-chart-frame", Method: http.MethodGet, Path: "/api/v1/properties/{property_id}/chart/frame", Summary: "Render chart and return frame metadata", Description: "Same render as the image endpoint; returns state, domains and size without the image bytes.", Tags: []string{"Chart"}},
		func(ctx context.Context, input *chartInput) (*chartFrameOutput, error) {
			res, err := svc.RenderChart(ctx, toRequest(input))
			if err != nil {
				return nil, mapErr(err)
			}
			return &chartFrameOutput{Body: res}, nil
		})

	type normalizeOutput struct {
		Body struct {
			Count  int            `json:"count"`
			Series *series.Series `json:"series"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "normalize-series", Method: http.MethodPost, Path: "/api/v1/series/normalize", Summary: "Validate and order raw candle records", Description: "Accepts date/time/timestamp keys and numeric strings. Errors name the offending record index and field.", Tags: []string{"Chart"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Records []series.Record `json:"records" doc:"Raw candle records"`
			}
		}) (*normalizeOutput, error) {
			ser, err := svc.NormalizeSeries(ctx, input.Body.Records)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &normalizeOutput{}
			out.Body.Count = ser.Len()
			out.Body.Series = ser
			return out, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "render-series",
		Method:      http.MethodPost,
		Path:        "/api/v1/series/render",
		Summary:     "Render raw candle records",
		Description: "Records are sorted by time before drawing. Records that fail validation produce an invalid-state placeholder.",
		Tags:        []string{"Chart"},
		Responses:   imageResponses(),
	}, func(ctx context.Context, input *struct {
		Body struct {
			Records    []series.Record `json:"records" doc:"Raw candle records"`
			Width      int             `json:"width,omitempty" minimum:"0"`
			Height     int             `json:"height,omitempty" minimum:"0"`
			PixelRatio float64         `json:"pixel_ratio,omitempty" minimum:"0"`
			Format     string          `json:"format,omitempty" doc:"svg (default) or png"`
		}
	}) (*chartImageOutput, error) {
		b := input.Body
		frame, err := svc.RenderRecords(ctx, b.Records, b.Width, b.Height, b.PixelRatio, b.Format)
		if err != nil {
			return nil, mapErr(err)
		}
		return imageOutput(frame), nil
	})
}
