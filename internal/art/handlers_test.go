package art

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/constants"
	"artspire/internal/endpoints"
)

func TestImageStoreHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		storeErr error
		want     endpoints.ImageStatus
	}{
		{"png stored", `{"img_base64":"` + b64(pngBytes(t)) + `","img_type":"image/png","blob_name":"arts/1/a.jpg"}`, nil, endpoints.ImageStatusSuccess},
		{"not json", `{{`, nil, endpoints.ImageStatusJSONDecodeError},
		{"missing blob name", `{"img_base64":"` + b64(pngBytes(t)) + `","img_type":"image/png"}`, nil, endpoints.ImageStatusJSONDecodeError},
		{"gif rejected", `{"img_base64":"R0lGODlh","img_type":"image/gif","blob_name":"x"}`, nil, endpoints.ImageStatusInvalidType},
		{"bad base64", `{"img_base64":"%%%","img_type":"image/png","blob_name":"x"}`, nil, endpoints.ImageStatusOSError},
		{"undecodable image", `{"img_base64":"` + b64([]byte("junk")) + `","img_type":"image/png","blob_name":"x"}`, nil, endpoints.ImageStatusOSError},
		{"storage failure", `{"img_base64":"` + b64(jpegBytes(t)) + `","img_type":"image/jpeg","blob_name":"x"}`, errStoreDown, endpoints.ImageStatusCloudError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.err = tt.storeErr
			h := NewImageStoreHandler(newTestImageService(store, time.Now()))

			reply, err := h.Handle(context.Background(), []byte(tt.body))
			require.NoError(t, err)

			var resp endpoints.ImageStoreResponse
			require.NoError(t, json.Unmarshal(reply, &resp))
			assert.Equal(t, tt.want, resp.Status)

			if tt.want == endpoints.ImageStatusSuccess {
				require.NotNil(t, resp.BlobName)
				blob, err := store.Get(context.Background(), *resp.BlobName)
				require.NoError(t, err)
				assert.Equal(t, constants.MimeJPEG, blob.ContentType)
			} else {
				assert.Nil(t, resp.BlobName)
			}
		})
	}
}

func TestImageStoreHandler_ReplyShape(t *testing.T) {
	h := NewImageStoreHandler(newTestImageService(newMemStore(), time.Now()))

	reply, err := h.Handle(context.Background(), []byte(`nope`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":1001,"blob_name":null}`, string(reply))
}

func TestImageURLHandler(t *testing.T) {
	h := NewImageURLHandler(newTestImageService(newMemStore(), time.Now()))

	reply, err := h.Handle(context.Background(), []byte(`{"blob_name":"arts/1/a.jpg"}`))
	require.NoError(t, err)

	var resp endpoints.ImageURLResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, endpoints.ImageStatusSuccess, resp.Status)
	require.NotNil(t, resp.ImgURL)
	assert.Contains(t, *resp.ImgURL, "/blobs/arts/1/a.jpg?")

	reply, err = h.Handle(context.Background(), []byte(`[]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":1001,"img_url":null}`, string(reply))

	reply, err = h.Handle(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":1001,"img_url":null}`, string(reply))
}
