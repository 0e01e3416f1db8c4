package recommendations

import (
	"context"
	"fmt"

	"artspire/internal/config"
	"artspire/pkg/circuitbreaker"
)

type cachedIDs struct {
	ids   []int
	found bool
}

// CircuitBreakerCache fails fast while redis is unhealthy so lookups fall
// through to the index without waiting on timeouts.
type CircuitBreakerCache struct {
	cache Cache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerCache(cache Cache, cfg config.CircuitBreakerConfig) *CircuitBreakerCache {
	if !cfg.Enabled {
		return &CircuitBreakerCache{cache: cache}
	}
	return &CircuitBreakerCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(circuitbreaker.FromConfig("redis-similarity", cfg)),
	}
}

func (c *CircuitBreakerCache) Get(ctx context.Context, artID int) ([]int, bool, error) {
	if c.cb == nil {
		return c.cache.Get(ctx, artID)
	}

	result, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		ids, found, err := c.cache.Get(ctx, artID)
		return cachedIDs{ids: ids, found: found}, err
	})
	if err != nil {
		return nil, false, c.wrap(err)
	}

	cached, ok := result.(cachedIDs)
	if !ok {
		return nil, false, fmt.Errorf("cache returned invalid result type")
	}
	return cached.ids, cached.found, nil
}

func (c *CircuitBreakerCache) Set(ctx context.Context, artID int, ids []int) error {
	if c.cb == nil {
		return c.cache.Set(ctx, artID, ids)
	}

	_, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.cache.Set(ctx, artID, ids)
	})
	return c.wrap(err)
}

func (c *CircuitBreakerCache) Invalidate(ctx context.Context, artIDs []int) error {
	if c.cb == nil {
		return c.cache.Invalidate(ctx, artIDs)
	}

	_, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.cache.Invalidate(ctx, artIDs)
	})
	return c.wrap(err)
}

func (c *CircuitBreakerCache) wrap(err error) error {
	if err != nil && c.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for %s: %w", c.cb.Name(), err)
	}
	return err
}

func (c *CircuitBreakerCache) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}
