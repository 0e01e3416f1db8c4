package recommendations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"artspire/pkg/metrics"
)

type Index interface {
	// Neighbours reports false when artID is not in the index.
	Neighbours(ctx context.Context, artID int) ([]Neighbour, bool, error)
	// KnownIDs lists every indexed art id in ascending order.
	KnownIDs(ctx context.Context) ([]int, error)
	Upsert(ctx context.Context, entries []Entry) error
	// Replace makes entries the whole content of the index.
	Replace(ctx context.Context, entries []Entry) error
}

type MongoIndex struct {
	collection *mongo.Collection
}

func NewMongoIndex(db *mongo.Database, collection string) *MongoIndex {
	return &MongoIndex{collection: db.Collection(collection)}
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery("recommendations-service", "mongodb", op, err, time.Since(start))
}

func (m *MongoIndex) Neighbours(ctx context.Context, artID int) (neighbours []Neighbour, found bool, err error) {
	defer func(start time.Time) { observe("find_neighbours", start, err) }(time.Now())

	var entry Entry
	err = m.collection.FindOne(ctx, bson.M{"art_id": artID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find art %d: %w", artID, err)
	}
	return entry.Neighbours, true, nil
}

func (m *MongoIndex) KnownIDs(ctx context.Context) (ids []int, err error) {
	defer func(start time.Time) { observe("known_ids", start, err) }(time.Now())

	values, err := m.collection.Distinct(ctx, "art_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list art ids: %w", err)
	}

	ids = make([]int, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case int32:
			ids = append(ids, int(id))
		case int64:
			ids = append(ids, int(id))
		case float64:
			ids = append(ids, int(id))
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *MongoIndex) Upsert(ctx context.Context, entries []Entry) (err error) {
	defer func(start time.Time) { observe("upsert_entries", start, err) }(time.Now())
	return m.upsert(ctx, entries)
}

func (m *MongoIndex) upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		e.UpdatedAt = now
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"art_id": e.ArtID}).
			SetReplacement(e).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to write similarity entries: %w", err)
	}
	return nil
}

func (m *MongoIndex) Replace(ctx context.Context, entries []Entry) (err error) {
	defer func(start time.Time) { observe("replace_entries", start, err) }(time.Now())

	if err := m.upsert(ctx, entries); err != nil {
		return err
	}

	keep := make([]int, 0, len(entries))
	for _, e := range entries {
		keep = append(keep, e.ArtID)
	}
	if _, err := m.collection.DeleteMany(ctx, bson.M{"art_id": bson.M{"$nin": keep}}); err != nil {
		return fmt.Errorf("failed to drop stale similarity entries: %w", err)
	}
	return nil
}

// Rank orders neighbours by descending score, ties by id, and drops artID
// itself.
func Rank(artID int, neighbours []Neighbour) []int {
	sorted := make([]Neighbour, 0, len(neighbours))
	for _, n := range neighbours {
		if n.ArtID != artID {
			sorted = append(sorted, n)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ArtID < sorted[j].ArtID
	})

	ids := make([]int, 0, len(sorted))
	for _, n := range sorted {
		ids = append(ids, n.ArtID)
	}
	return ids
}
