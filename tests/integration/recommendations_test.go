package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/broker"
	"artspire/internal/recommendations"
	"artspire/pkg/migrations"
	"artspire/pkg/models"
)

const similarityCollection = "similarity_index"

func TestMongoIndex_UpsertAndReplace(t *testing.T) {
	infra := SetupTestInfra(t, Needs{Mongo: true})

	ctx := context.Background()
	require.NoError(t, migrations.EnsureSimilarityIndexes(ctx, infra.MongoDB, similarityCollection))
	index := recommendations.NewMongoIndex(infra.MongoDB, similarityCollection)

	require.NoError(t, index.Upsert(ctx, createTestEntries()))

	neighbours, found, err := index.Neighbours(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{2, 3}, recommendations.Rank(1, neighbours))

	_, found, err = index.Neighbours(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)

	ids, err := index.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	require.NoError(t, index.Replace(ctx, []recommendations.Entry{
		{ArtID: 3, Neighbours: []recommendations.Neighbour{{ArtID: 7, Score: 0.1}}},
		{ArtID: 7, Neighbours: []recommendations.Neighbour{{ArtID: 3, Score: 0.1}}},
	}))

	ids, err = index.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, ids)

	neighbours, _, err = index.Neighbours(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, recommendations.Rank(3, neighbours))
}

func TestRedisCache_SetGetInvalidate(t *testing.T) {
	infra := SetupTestInfra(t, Needs{Redis: true})

	ctx := context.Background()
	cache := recommendations.NewRedisCache(infra.RedisClient, time.Minute)

	_, found, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, 1, []int{3, 2}))
	require.NoError(t, cache.Set(ctx, 2, []int{1}))
	require.NoError(t, cache.Set(ctx, 1, []int{2, 3}))

	ids, found, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{2, 3}, ids)

	ttl, err := infra.RedisClient.TTL(ctx, "similar_arts_for_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, []int{1}))
	_, found, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, cache.Invalidate(ctx, nil))
	_, found, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecommender_CacheAside(t *testing.T) {
	infra := SetupTestInfra(t, Needs{Mongo: true, Redis: true})

	ctx := context.Background()
	index := recommendations.NewMongoIndex(infra.MongoDB, similarityCollection)
	require.NoError(t, index.Upsert(ctx, createTestEntries()))

	cache := recommendations.NewRedisCache(infra.RedisClient, time.Minute)
	recommender := recommendations.NewRecommender(index, cache, []int{100}, createTestLogger())

	ids, source, err := recommender.Similar(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, recommendations.SourceIndex, source)
	assert.Equal(t, []int{1, 3}, ids)

	ids, source, err = recommender.Similar(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, recommendations.SourceCache, source)
	assert.Equal(t, []int{1, 3}, ids)

	ids, source, err = recommender.Similar(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, recommendations.SourceFallback, source)
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestImporter_PublishesIndexEvent(t *testing.T) {
	infra := SetupTestInfra(t, Needs{Mongo: true, Redis: true})

	ctx := context.Background()
	index := recommendations.NewMongoIndex(infra.MongoDB, similarityCollection)
	cache := recommendations.NewRedisCache(infra.RedisClient, time.Minute)
	require.NoError(t, cache.Set(ctx, 1, []int{9}))
	require.NoError(t, cache.Set(ctx, 2, []int{9}))

	handler := recommendations.NewIndexEventHandler(cache, similarityCollection, createTestLogger())
	producer := &handlerProducer{handler: handler}
	importer := recommendations.NewImporter(index, producer, "index_events", similarityCollection, "test", createTestLogger())

	require.NoError(t, importer.Import(ctx, createTestEntries()[:1], models.ActionUpsert))

	_, found, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, found)
}

// handlerProducer delivers published events straight to a handler.
type handlerProducer struct {
	handler broker.HandlerFunc
}

func (p *handlerProducer) Publish(ctx context.Context, _ string, event models.Event) error {
	return p.handler(ctx, event)
}

func (p *handlerProducer) Close() error { return nil }
