package art

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/webp"

	"artspire/internal/constants"
)

var ErrInvalidImageType = errors.New("invalid image type")

const jpegQuality = 90

// AllowedImageTypes lists the mime types accepted for upload.
var AllowedImageTypes = []string{constants.MimeJPEG, constants.MimePNG, constants.MimeWEBP}

func IsAllowedImageType(mimeType string) bool {
	for _, t := range AllowedImageTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// NormalizeImage returns data as jpeg. Jpeg input is checked and passed
// through; png and webp are decoded, flattened onto white and re-encoded.
func NormalizeImage(data []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch mimeType {
	case constants.MimeJPEG:
		if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
		return data, nil
	case constants.MimePNG:
		img, err = png.Decode(bytes.NewReader(data))
	case constants.MimeWEBP:
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidImageType, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mimeType, err)
	}

	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
