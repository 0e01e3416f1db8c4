package recommendations

import (
	"context"
	"errors"

	"artspire/internal/logger"
)

// ErrNoFallback means an unknown art would get an empty recommendation
// list: the index holds nothing and no fallback ids are configured.
var ErrNoFallback = errors.New("similarity index is empty and no fallback ids are configured")

// Recommender answers similarity lookups from the cache, then the index,
// then the fallback list.
type Recommender struct {
	index       Index
	cache       Cache
	fallbackIDs []int
	logger      logger.Logger
}

func NewRecommender(index Index, cache Cache, fallbackIDs []int, log logger.Logger) *Recommender {
	return &Recommender{
		index:       index,
		cache:       cache,
		fallbackIDs: fallbackIDs,
		logger:      log.Named("recommender"),
	}
}

// Similar returns the ids similar to artID and where they came from.
func (r *Recommender) Similar(ctx context.Context, artID int) ([]int, string, error) {
	ids, found, err := r.cache.Get(ctx, artID)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Similarity cache unavailable", "art_id", artID, "error", err)
	}
	if found {
		return ids, SourceCache, nil
	}

	neighbours, known, err := r.index.Neighbours(ctx, artID)
	if err != nil {
		return nil, "", err
	}
	if !known {
		r.logger.InfowCtx(ctx, "Art not in similarity index, returning fallback", "art_id", artID)
		ids, err := r.Fallback(ctx)
		return ids, SourceFallback, err
	}

	ids = Rank(artID, neighbours)
	if err := r.cache.Set(ctx, artID, ids); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to cache similar arts", "art_id", artID, "error", err)
	}
	return ids, SourceIndex, nil
}

// Fallback lists every indexed art in ascending order, or the configured
// ids when the index is empty.
func (r *Recommender) Fallback(ctx context.Context) ([]int, error) {
	ids, err := r.index.KnownIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}

	if len(r.fallbackIDs) == 0 {
		r.logger.WarnwCtx(ctx, "Fallback requested but nothing to return", "error", ErrNoFallback)
	}
	out := make([]int, len(r.fallbackIDs))
	copy(out, r.fallbackIDs)
	return out, nil
}

// CheckFallback returns ErrNoFallback when a fallback lookup would come back
// empty. Callers treat it as a warning; the index may be imported later.
func (r *Recommender) CheckFallback(ctx context.Context) error {
	if len(r.fallbackIDs) > 0 {
		return nil
	}
	ids, err := r.index.KnownIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoFallback
	}
	return nil
}
