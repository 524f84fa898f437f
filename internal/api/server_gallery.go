package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/candleview/internal/carousel"
)

func registerGalleryHandlers(api huma.API, svc Service) {
	type galleryOutput struct {
		Body carousel.State
	}

	huma.Register(api, huma.Operation{OperationID: "get-gallery", Method: http.MethodGet, Path: "/api/v1/properties/{property_id}/gallery", Summary: "Get gallery position", Tags: []string{"Gallery"}},
		func(ctx context.Context, input *propertyIDInput) (*galleryOutput, error) {
			st, err := svc.GetGallery(ctx, input.PropertyID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &galleryOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "gallery-next", Method: http.MethodPost, Path: "/api/v1/properties/{property_id}/gallery/next", Summary: "Show next image", Description: "Restarts the auto-advance timer.", Tags: []string{"Gallery"}},
		func(ctx context.Context, input *propertyIDInput) (*galleryOutput, error) {
			st, err := svc.NextImage(ctx, input.PropertyID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &galleryOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "gallery-prev", Method: http.MethodPost, Path: "/api/v1/properties/{property_id}/gallery/prev", Summary: "Show previous image", Description: "Restarts the auto-advance timer.", Tags: []string{"Gallery"}},
		func(ctx context.Context, input *propertyIDInput) (*galleryOutput, error) {
			st, err := svc.PrevImage(ctx, input.PropertyID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &galleryOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "gallery-select", Method: http.MethodPut, Path: "/api/v1/properties/{property_id}/gallery", Summary: "Jump to an image", Description: "Out-of-range indexes wrap around.", Tags: []string{"Gallery"}},
		func(ctx context.Context, input *struct {
			PropertyID string `path:"property_id"`
			Index      int    `query:"index" required:"true"`
		}) (*galleryOutput, error) {
			st, err := svc.SelectImage(ctx, input.PropertyID, input.Index)
			if err != nil {
				return nil, mapErr(err)
			}
			return &galleryOutput{Body: st}, nil
		})
}
