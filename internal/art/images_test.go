package art

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/constants"
)

func TestNormalizeImage(t *testing.T) {
	t.Run("png becomes jpeg", func(t *testing.T) {
		out, err := NormalizeImage(pngBytes(t), constants.MimePNG)
		require.NoError(t, err)

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Width)
	})

	t.Run("jpeg passes through", func(t *testing.T) {
		in := jpegBytes(t)
		out, err := NormalizeImage(in, constants.MimeJPEG)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	tests := []struct {
		name     string
		data     []byte
		mimeType string
	}{
		{"corrupt png", []byte("nope"), constants.MimePNG},
		{"corrupt jpeg", []byte("nope"), constants.MimeJPEG},
		{"corrupt webp", []byte("RIFF0000WEBP"), constants.MimeWEBP},
		{"gif", []byte("GIF89a"), "image/gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeImage(tt.data, tt.mimeType)
			assert.Error(t, err)
		})
	}
}

func TestIsAllowedImageType(t *testing.T) {
	assert.True(t, IsAllowedImageType("image/webp"))
	assert.False(t, IsAllowedImageType("image/gif"))
	assert.False(t, IsAllowedImageType(""))
}
