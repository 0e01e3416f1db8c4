package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureSimilarityIndexes creates the indexes the similarity lookups rely
// on. The collection itself is created on first insert.
func EnsureSimilarityIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "art_id", Value: 1}},
			Options: options.Index().SetName("idx_similarity_art_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_similarity_updated_at"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// EnsureBlobIndexes indexes GridFS file metadata by content type so blob
// listings by type stay cheap.
func EnsureBlobIndexes(ctx context.Context, db *mongo.Database, bucket string) error {
	_, err := db.Collection(bucket+".files").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "metadata.content_type", Value: 1}},
		Options: options.Index().SetName("idx_blob_content_type"),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create blob indexes: %w", err)
	}
	return nil
}
