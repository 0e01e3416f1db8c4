package art

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"artspire/internal/logger"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string]Blob
	err   error
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string]Blob{}}
}

func (s *memStore) Put(_ context.Context, blob Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blobs[blob.Name] = blob
	return nil
}

func (s *memStore) Get(_ context.Context, name string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return &b, nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, name)
	return nil
}

var errStoreDown = errors.New("store down")

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: uint8(60 * y)})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func newTestImageService(store BlobStore, now time.Time) *ImageService {
	signer := NewURLSigner([]byte("secret"), "http://localhost:8080", 7*24*time.Hour)
	signer.now = func() time.Time { return now }
	return NewImageService(store, signer, logger.NopLogger())
}
