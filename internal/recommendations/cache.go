package recommendations

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"artspire/internal/constants"
)

type Cache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, artID int) ([]int, bool, error)
	Set(ctx context.Context, artID int, ids []int) error
	// Invalidate drops the lists of artIDs, or every list when artIDs is
	// empty.
	Invalidate(ctx context.Context, artIDs []int) error
}

// RedisCache keeps neighbour lists as redis lists named
// similar_arts_for_{id}.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = constants.DefaultSimilarityTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(artID int) string {
	return constants.CacheKeyPrefixSimilarity + strconv.Itoa(artID)
}

func (c *RedisCache) Get(ctx context.Context, artID int) ([]int, bool, error) {
	values, err := c.client.LRange(ctx, cacheKey(artID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis LRANGE failed: %w", err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}

	ids := make([]int, 0, len(values))
	for _, v := range values {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("corrupt cache entry %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}

func (c *RedisCache) Set(ctx context.Context, artID int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	key := cacheKey(artID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis RPUSH failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, artIDs []int) error {
	if len(artIDs) > 0 {
		keys := make([]string, len(artIDs))
		for i, id := range artIDs {
			keys[i] = cacheKey(id)
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis DEL failed: %w", err)
		}
		return nil
	}

	iter := c.client.Scan(ctx, 0, constants.CacheKeyPrefixSimilarity+"*", 0).Iterator()
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis DEL failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}
