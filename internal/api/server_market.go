package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/candleview/internal/controller"
	"github.com/dgnsrekt/candleview/internal/market"
)

func registerMarketHandlers(api huma.API, svc Service) {
	type listPropertiesOutput struct {
		Body struct {
			Properties []market.Property `json:"properties"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-properties", Method: http.MethodGet, Path: "/api/v1/properties", Summary: "List properties", Tags: []string{"Market"}},
		func(ctx context.Context, input *struct{}) (*listPropertiesOutput, error) {
			props, err := svc.ListProperties(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listPropertiesOutput{}
			out.Body.Properties = props
			if out.Body.Properties == nil {
				out.Body.Properties = []market.Property{}
			}
			return out, nil
		})

	type propertyOutput struct {
		Body controller.PropertyDetail
	}
	huma.Register(api, huma.Operation{OperationID: "get-property", Method: http.MethodGet, Path: "/api/v1/properties/{property_id}", Summary: "Get property with price stats", Tags: []string{"Market"}},
		func(ctx context.Context, input *propertyIDInput) (*propertyOutput, error) {
			detail, err := svc.GetProperty(ctx, input.PropertyID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &propertyOutput{Body: detail}, nil
		})

	type seriesOutput struct {
		Body controller.SeriesResult
	}
	huma.Register(api, huma.Operation{OperationID: "get-series", Method: http.MethodGet, Path: "/api/v1/properties/{property_id}/series", Summary: "Generate candle series", Description: "Synthetic daily candles ending now, one per day of the timeframe plus the current day.", Tags: []string{"Market"}},
		func(ctx context.Context, input *struct {
			PropertyID string `path:"property_id"`
			Timeframe  string `query:"timeframe" doc:"1D, 1W, 1M or 1Y" example:"1W"`
		}) (*seriesOutput, error) {
			res, err := svc.Series(ctx, input.PropertyID, input.Timeframe)
			if err != nil {
				return nil, mapErr(err)
			}
			return &seriesOutput{Body: res}, nil
		})

	type orderBookOutput struct {
		Body controller.OrderBookResult
	}
	huma.Register(api, huma.Operation{OperationID: "get-order-book", Method: http.MethodGet, Path: "/api/v1/properties/{property_id}/orderbook", Summary: "Synthetic order book and recent trades", Tags: []string{"Market"}},
		func(ctx context.Context, input *propertyIDInput) (*orderBookOutput, error) {
			res, err := svc.OrderBook(ctx, input.PropertyID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &orderBookOutput{Body: res}, nil
		})
}
