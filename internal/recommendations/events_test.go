package recommendations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/logger"
	"artspire/pkg/models"
)

func indexEvent(update models.IndexUpdated) models.Event {
	return models.NewEventBuilder(models.EventTypeIndexUpdated).WithPayload(update.Payload()).Build()
}

func TestIndexEventHandler(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	cache.lists[3] = []int{4}
	cache.lists[4] = []int{3}
	handler := NewIndexEventHandler(cache, "similarity_index", logger.NopLogger())

	require.NoError(t, handler(ctx, indexEvent(models.IndexUpdated{Collection: "similarity_index", Action: models.ActionUpsert, ArtIDs: []int{3}})))
	assert.NotContains(t, cache.lists, 3)
	assert.Contains(t, cache.lists, 4)

	require.NoError(t, handler(ctx, indexEvent(models.IndexUpdated{Collection: "other", Action: models.ActionReplace})))
	assert.Contains(t, cache.lists, 4)

	require.NoError(t, handler(ctx, indexEvent(models.IndexUpdated{Collection: "similarity_index", Action: models.ActionReplace, ArtIDs: []int{9}})))
	assert.Empty(t, cache.lists)
	assert.Nil(t, cache.invalidated[len(cache.invalidated)-1])

	require.NoError(t, handler(ctx, models.NewEventBuilder(models.EventTypePing).Build()))

	bad := models.NewEventBuilder(models.EventTypeIndexUpdated).WithPayload(map[string]interface{}{}).Build()
	assert.Error(t, handler(ctx, bad))

	cache.err = errors.New("redis down")
	assert.Error(t, handler(ctx, indexEvent(models.IndexUpdated{Collection: "similarity_index", Action: models.ActionReplace})))
}

func TestImporter(t *testing.T) {
	ctx := context.Background()
	entries, err := ReadEntries(strings.NewReader(`[
		{"art_id": 1, "neighbours": [{"art_id": 2, "score": 0.5}]},
		{"art_id": 2, "neighbours": [{"art_id": 1, "score": 0.5}]}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	index := newMemIndex(Entry{ArtID: 77})
	producer := &recordingProducer{}
	importer := NewImporter(index, producer, "similarity_index_events", "similarity_index", "recommendations-service", logger.NopLogger())

	require.NoError(t, importer.Import(ctx, entries, models.ActionReplace))
	ids, err := index.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	require.Len(t, producer.events, 1)
	assert.Equal(t, "similarity_index_events", producer.topics[0])
	update, err := models.IndexUpdatedFromEvent(producer.events[0])
	require.NoError(t, err)
	assert.Equal(t, 2, update.Entries)
	assert.Equal(t, models.ActionReplace, update.Action)
	assert.Empty(t, update.ArtIDs)

	require.NoError(t, importer.Import(ctx, entries[:1], models.ActionUpsert))
	update, err = models.IndexUpdatedFromEvent(producer.events[1])
	require.NoError(t, err)
	assert.Equal(t, []int{1}, update.ArtIDs)

	assert.Error(t, importer.Import(ctx, entries, "merge"))
}

func TestReadEntries_Rejects(t *testing.T) {
	_, err := ReadEntries(strings.NewReader(`{"art_id": 1}`))
	assert.Error(t, err)

	_, err = ReadEntries(strings.NewReader(`[{"art_id": 1}, {"art_id": 1}]`))
	assert.Error(t, err)
}
