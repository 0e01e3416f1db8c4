package recommendations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"artspire/internal/logger"
)

func TestRank(t *testing.T) {
	ids := Rank(3, []Neighbour{
		{ArtID: 3, Score: 1},
		{ArtID: 9, Score: 0.2},
		{ArtID: 4, Score: 0.9},
		{ArtID: 5, Score: 0.2},
	})
	assert.Equal(t, []int{4, 5, 9}, ids)
	assert.Empty(t, Rank(1, nil))
}

func TestRecommender_Similar(t *testing.T) {
	ctx := context.Background()
	index := sampleIndex()
	cache := newMemCache()
	r := NewRecommender(index, cache, []int{100}, logger.NopLogger())

	ids, source, err := r.Similar(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 9}, ids)
	assert.Equal(t, SourceIndex, source)
	assert.Equal(t, []int{4, 5, 9}, cache.lists[3])

	ids, source, err = r.Similar(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 9}, ids)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, 1, index.lookups)
}

func TestRecommender_UnknownIDFallsBack(t *testing.T) {
	ctx := context.Background()

	r := NewRecommender(sampleIndex(), newMemCache(), []int{100}, logger.NopLogger())
	ids, source, err := r.Similar(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, source)
	assert.Equal(t, []int{3, 4, 9}, ids)

	empty := NewRecommender(newMemIndex(), newMemCache(), []int{100, 101}, logger.NopLogger())
	ids, _, err = empty.Similar(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 101}, ids)
}

func TestRecommender_CheckFallback(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewRecommender(sampleIndex(), newMemCache(), nil, logger.NopLogger()).CheckFallback(ctx))
	assert.NoError(t, NewRecommender(newMemIndex(), newMemCache(), []int{100}, logger.NopLogger()).CheckFallback(ctx))

	core, logs := observer.New(zapcore.WarnLevel)
	empty := NewRecommender(newMemIndex(), newMemCache(), nil, logger.NewWithCore(core))
	assert.ErrorIs(t, empty.CheckFallback(ctx), ErrNoFallback)

	ids, source, err := empty.Similar(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, source)
	assert.Empty(t, ids)
	assert.Equal(t, 1, logs.FilterMessage("Fallback requested but nothing to return").Len())

	broken := newMemIndex()
	broken.err = errors.New("mongo down")
	err = NewRecommender(broken, newMemCache(), nil, logger.NopLogger()).CheckFallback(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFallback)
}

func TestRecommender_CacheFailureFallsThrough(t *testing.T) {
	cache := newMemCache()
	cache.err = errors.New("redis down")

	r := NewRecommender(sampleIndex(), cache, nil, logger.NopLogger())
	ids, source, err := r.Similar(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, SourceIndex, source)
	assert.Equal(t, []int{3}, ids)
}

func TestRecommender_IndexFailure(t *testing.T) {
	index := sampleIndex()
	index.err = errors.New("mongo down")

	r := NewRecommender(index, newMemCache(), nil, logger.NopLogger())
	_, _, err := r.Similar(context.Background(), 3)
	assert.Error(t, err)
}
