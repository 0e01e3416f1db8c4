package recommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"artspire/internal/broker"
	"artspire/internal/logger"
	"artspire/pkg/models"
)

// Importer loads similarity entries into the index and announces the change
// on the events topic.
type Importer struct {
	index      Index
	producer   broker.Producer
	topic      string
	collection string
	source     string
	logger     logger.Logger
}

func NewImporter(index Index, producer broker.Producer, topic, collection, source string, log logger.Logger) *Importer {
	return &Importer{
		index:      index,
		producer:   producer,
		topic:      topic,
		collection: collection,
		source:     source,
		logger:     log.Named("importer"),
	}
}

// ReadEntries decodes a JSON array of entries and rejects duplicates.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode similarity entries: %w", err)
	}

	seen := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ArtID]; dup {
			return nil, fmt.Errorf("duplicate entry for art %d", e.ArtID)
		}
		seen[e.ArtID] = struct{}{}
	}
	return entries, nil
}

// Import writes entries with the given action (replace or upsert) and
// publishes an index-updated event.
func (i *Importer) Import(ctx context.Context, entries []Entry, action string) error {
	var err error
	switch action {
	case models.ActionReplace:
		err = i.index.Replace(ctx, entries)
	case models.ActionUpsert:
		err = i.index.Upsert(ctx, entries)
	default:
		return fmt.Errorf("unknown import action %q", action)
	}
	if err != nil {
		return err
	}

	update := models.IndexUpdated{
		Collection: i.collection,
		Action:     action,
		Entries:    len(entries),
		UpdatedAt:  time.Now().UTC(),
	}
	if action == models.ActionUpsert {
		for _, e := range entries {
			update.ArtIDs = append(update.ArtIDs, e.ArtID)
		}
	}

	event := models.NewEventBuilder(models.EventTypeIndexUpdated).
		WithSource(i.source).
		WithPayload(update.Payload()).
		Build()

	if err := i.producer.Publish(ctx, i.topic, event); err != nil {
		return fmt.Errorf("index written but event not published: %w", err)
	}

	i.logger.InfowCtx(ctx, "Similarity index imported",
		"collection", i.collection,
		"action", action,
		"entries", len(entries),
	)
	return nil
}
