package models

import (
	"fmt"
	"time"
)

const (
	EventTypeIndexUpdated = "similarity.index_updated"
	EventTypePing         = "ping"
)

const (
	ActionReplace = "replace"
	ActionUpsert  = "upsert"
)

// IndexUpdated announces that the similarity index changed, so cached
// neighbour lists derived from it are stale.
type IndexUpdated struct {
	Collection string    `json:"collection"`
	Action     string    `json:"action"`
	Entries    int       `json:"entries"`
	ArtIDs     []int     `json:"art_ids,omitempty"` // empty means every id
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u IndexUpdated) Payload() map[string]interface{} {
	ids := make([]interface{}, 0, len(u.ArtIDs))
	for _, id := range u.ArtIDs {
		ids = append(ids, id)
	}
	return map[string]interface{}{
		"collection": u.Collection,
		"action":     u.Action,
		"entries":    u.Entries,
		"art_ids":    ids,
		"updated_at": u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// IndexUpdatedFromEvent decodes the payload of an index-updated event that
// went through a JSON round trip.
func IndexUpdatedFromEvent(e Event) (IndexUpdated, error) {
	if e.Type != EventTypeIndexUpdated {
		return IndexUpdated{}, &ValidationError{Field: "type", Message: fmt.Sprintf("unexpected event type %q", e.Type)}
	}

	var u IndexUpdated
	u.Collection, _ = e.Payload["collection"].(string)
	u.Action, _ = e.Payload["action"].(string)
	if n, ok := e.Payload["entries"].(float64); ok {
		u.Entries = int(n)
	} else if n, ok := e.Payload["entries"].(int); ok {
		u.Entries = n
	}

	if raw, ok := e.Payload["art_ids"].([]interface{}); ok {
		for _, v := range raw {
			switch id := v.(type) {
			case float64:
				u.ArtIDs = append(u.ArtIDs, int(id))
			case int:
				u.ArtIDs = append(u.ArtIDs, id)
			default:
				return IndexUpdated{}, &ValidationError{Field: "payload.art_ids", Message: "art ids must be numbers"}
			}
		}
	}

	if ts, ok := e.Payload["updated_at"].(string); ok && ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return IndexUpdated{}, &ValidationError{Field: "payload.updated_at", Message: err.Error()}
		}
		u.UpdatedAt = parsed
	}

	if u.Collection == "" {
		return IndexUpdated{}, &ValidationError{Field: "payload.collection", Message: "collection is required"}
	}
	return u, nil
}
