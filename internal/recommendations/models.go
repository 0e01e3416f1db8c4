package recommendations

import "time"

type Neighbour struct {
	ArtID int     `bson:"art_id" json:"art_id"`
	Score float64 `bson:"score" json:"score"`
}

// Entry is one row of the similarity index: an art and its scored
// neighbours.
type Entry struct {
	ArtID      int         `bson:"art_id" json:"art_id"`
	Neighbours []Neighbour `bson:"neighbours" json:"neighbours"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at,omitempty"`
}

// Lookup sources reported in metrics.
const (
	SourceCache    = "cache"
	SourceIndex    = "index"
	SourceFallback = "fallback"
)
