package recommendations

import (
	"context"
	"fmt"

	"artspire/internal/broker"
	"artspire/internal/logger"
	"artspire/pkg/models"
)

// NewIndexEventHandler drops cached neighbour lists when the similarity
// index in collection changes.
func NewIndexEventHandler(cache Cache, collection string, log logger.Logger) broker.HandlerFunc {
	log = log.Named("index_events")

	return func(ctx context.Context, event models.Event) error {
		if event.Type != models.EventTypeIndexUpdated {
			log.DebugwCtx(ctx, "Ignoring event", "event_type", event.Type, "event_id", event.ID)
			return nil
		}

		update, err := models.IndexUpdatedFromEvent(event)
		if err != nil {
			return fmt.Errorf("invalid index event %s: %w", event.ID, err)
		}
		if update.Collection != collection {
			return nil
		}

		// Replacing the index can change any list.
		ids := update.ArtIDs
		if update.Action == models.ActionReplace {
			ids = nil
		}

		if err := cache.Invalidate(ctx, ids); err != nil {
			return err
		}

		log.InfowCtx(ctx, "Similarity cache invalidated",
			"event_id", event.ID,
			"action", update.Action,
			"art_ids", len(ids),
		)
		return nil
	}
}
