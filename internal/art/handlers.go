package art

import (
	"context"
	"encoding/json"

	"artspire/internal/endpoints"
	"artspire/pkg/metrics"
)

// ImageStoreHandler answers s3_image_add_request. Every outcome, including
// an undecodable request, is reported through the status field.
type ImageStoreHandler struct {
	images *ImageService
}

func NewImageStoreHandler(images *ImageService) *ImageStoreHandler {
	return &ImageStoreHandler{images: images}
}

func (h *ImageStoreHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	var (
		req  endpoints.ImageStoreRequest
		resp endpoints.ImageStoreResponse
	)

	if err := json.Unmarshal(body, &req); err != nil {
		resp.Status = endpoints.ImageStatusJSONDecodeError
	} else {
		name, status := h.images.Store(ctx, req)
		resp.Status = status
		if status == endpoints.ImageStatusSuccess {
			resp.BlobName = &name
		}
	}

	metrics.IncImageOperation("store", resp.Status.String())
	return json.Marshal(resp)
}

// ImageURLHandler answers s3_image_get_request.
type ImageURLHandler struct {
	images *ImageService
}

func NewImageURLHandler(images *ImageService) *ImageURLHandler {
	return &ImageURLHandler{images: images}
}

func (h *ImageURLHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	var (
		req  endpoints.ImageURLRequest
		resp endpoints.ImageURLResponse
	)

	if err := json.Unmarshal(body, &req); err != nil {
		resp.Status = endpoints.ImageStatusJSONDecodeError
	} else {
		url, status := h.images.URL(ctx, req.BlobName)
		resp.Status = status
		if status == endpoints.ImageStatusSuccess {
			resp.ImgURL = &url
		}
	}

	metrics.IncImageOperation("url", resp.Status.String())
	return json.Marshal(resp)
}
