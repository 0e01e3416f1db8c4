package art

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"artspire/pkg/metrics"
)

var ErrBlobNotFound = errors.New("blob not found")

type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

type BlobStore interface {
	// Put stores data under name, replacing any previous blob of that name.
	Put(ctx context.Context, blob Blob) error
	Get(ctx context.Context, name string) (*Blob, error)
	Delete(ctx context.Context, name string) error
}

// GridFSStore keeps blobs in a MongoDB GridFS bucket keyed by file name.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(db *mongo.Database, bucketName string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &GridFSStore{bucket: bucket}, nil
}

type blobMetadata struct {
	ContentType string `bson:"content_type"`
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery("art-service", "mongodb", op, err, time.Since(start))
}

func (s *GridFSStore) Put(ctx context.Context, blob Blob) (err error) {
	defer func(start time.Time) { observe("blob_put", start, err) }(time.Now())

	if err := s.deleteByName(ctx, blob.Name); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return err
	}

	if err := s.bucket.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(blobMetadata{ContentType: blob.ContentType})
	if _, err := s.bucket.UploadFromStream(blob.Name, bytes.NewReader(blob.Data), opts); err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", blob.Name, err)
	}
	return nil
}

func (s *GridFSStore) Get(ctx context.Context, name string) (blob *Blob, err error) {
	defer func(start time.Time) { observe("blob_get", start, err) }(time.Now())

	if err := s.bucket.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, err
	}

	stream, err := s.bucket.OpenDownloadStreamByName(name)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", name, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}

	var meta blobMetadata
	if raw := stream.GetFile().Metadata; len(raw) > 0 {
		_ = bson.Unmarshal(raw, &meta)
	}

	return &Blob{Name: name, ContentType: meta.ContentType, Data: data}, nil
}

func (s *GridFSStore) Delete(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe("blob_delete", start, err) }(time.Now())
	return s.deleteByName(ctx, name)
}

func (s *GridFSStore) deleteByName(ctx context.Context, name string) error {
	if err := s.bucket.SetReadDeadline(deadline(ctx)); err != nil {
		return err
	}
	cursor, err := s.bucket.Find(bson.M{"filename": name})
	if err != nil {
		return fmt.Errorf("failed to find blob %s: %w", name, err)
	}
	defer cursor.Close(ctx)

	found := false
	for cursor.Next(ctx) {
		var file struct {
			ID interface{} `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return err
		}
		if err := s.bucket.SetWriteDeadline(deadline(ctx)); err != nil {
			return err
		}
		if err := s.bucket.Delete(file.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("failed to delete blob %s: %w", name, err)
		}
		found = true
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	if !found {
		return ErrBlobNotFound
	}
	return nil
}
