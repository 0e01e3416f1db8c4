package art

import (
	"context"
	"encoding/base64"
	"errors"

	"artspire/internal/constants"
	"artspire/internal/endpoints"
	"artspire/internal/logger"
)

// ImageService stores uploaded images as jpeg blobs and hands out signed
// URLs for them. Outcomes are reported as image statuses.
type ImageService struct {
	store  BlobStore
	signer *URLSigner
	logger logger.Logger
}

func NewImageService(store BlobStore, signer *URLSigner, log logger.Logger) *ImageService {
	return &ImageService{store: store, signer: signer, logger: log.Named("images")}
}

func (s *ImageService) Store(ctx context.Context, req endpoints.ImageStoreRequest) (string, endpoints.ImageStatus) {
	if req.BlobName == "" || req.ImgBase64 == "" {
		return "", endpoints.ImageStatusJSONDecodeError
	}
	if !IsAllowedImageType(req.ImgType) {
		s.logger.WarnwCtx(ctx, "Rejected image type", "img_type", req.ImgType)
		return "", endpoints.ImageStatusInvalidType
	}

	raw, err := base64.StdEncoding.DecodeString(req.ImgBase64)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Image payload is not base64", "error", err)
		return "", endpoints.ImageStatusOSError
	}

	data, err := NormalizeImage(raw, req.ImgType)
	if errors.Is(err, ErrInvalidImageType) {
		return "", endpoints.ImageStatusInvalidType
	}
	if err != nil {
		s.logger.WarnwCtx(ctx, "Image could not be decoded", "img_type", req.ImgType, "error", err)
		return "", endpoints.ImageStatusOSError
	}

	if err := s.store.Put(ctx, Blob{Name: req.BlobName, ContentType: constants.MimeJPEG, Data: data}); err != nil {
		s.logger.ErrorwCtx(ctx, "Blob upload failed", "blob_name", req.BlobName, "error", err)
		return "", endpoints.ImageStatusCloudError
	}

	s.logger.InfowCtx(ctx, "Image stored", "blob_name", req.BlobName, "bytes", len(data))
	return req.BlobName, endpoints.ImageStatusSuccess
}

// URL signs a link to blobName. The blob itself is not looked up.
func (s *ImageService) URL(_ context.Context, blobName string) (string, endpoints.ImageStatus) {
	if blobName == "" {
		return "", endpoints.ImageStatusJSONDecodeError
	}
	return s.signer.Sign(blobName), endpoints.ImageStatusSuccess
}

// Open returns a blob behind a signed URL.
func (s *ImageService) Open(ctx context.Context, name, expires, signature string) (*Blob, error) {
	if err := s.signer.Verify(name, expires, signature); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, name)
}
