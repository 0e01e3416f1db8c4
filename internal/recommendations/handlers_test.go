package recommendations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/logger"
)

func TestSimilarityHandler(t *testing.T) {
	tests := []struct {
		name  string
		index *memIndex
		body  string
		want  []int
	}{
		{"known id", sampleIndex(), "3", []int{4, 5, 9}},
		{"surrounding whitespace", sampleIndex(), " 4\n", []int{3}},
		{"known id without neighbours", sampleIndex(), "9", []int{}},
		{"unknown id", sampleIndex(), "42", []int{3, 4, 9}},
		{"non-numeric", sampleIndex(), "abc", []int{3, 4, 9}},
		{"unknown id on empty index", newMemIndex(), "42", []int{7, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecommender(tt.index, newMemCache(), []int{7, 8}, logger.NopLogger())
			h := NewSimilarityHandler(r, logger.NopLogger())

			reply, err := h.Handle(context.Background(), []byte(tt.body))
			require.NoError(t, err)

			var got []int
			require.NoError(t, json.Unmarshal(reply, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimilarityHandler_UnknownIDNeverEmpty(t *testing.T) {
	r := NewRecommender(newMemIndex(), newMemCache(), []int{1, 2, 3}, logger.NopLogger())

	reply, err := NewSimilarityHandler(r, logger.NopLogger()).Handle(context.Background(), []byte("999"))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(reply))
}

func TestSimilarityHandler_IndexError(t *testing.T) {
	index := sampleIndex()
	index.err = errors.New("mongo down")
	r := NewRecommender(index, newMemCache(), nil, logger.NopLogger())

	_, err := NewSimilarityHandler(r, logger.NopLogger()).Handle(context.Background(), []byte("3"))
	assert.Error(t, err)
}
