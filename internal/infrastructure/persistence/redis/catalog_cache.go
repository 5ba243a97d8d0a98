package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/pkg/logger"
)

// CatalogStore is the source of truth for the achievement catalog.
type CatalogStore interface {
	ListCatalog(ctx context.Context) ([]progression.Achievement, error)
	UpsertCatalog(ctx context.Context, items []progression.Achievement) (int, error)
}

// jsonStore is the subset of Cache the catalog cache needs.
type jsonStore interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CatalogCache is a read-through cache of the achievement catalog.
// Redis errors never fail a read; the store is consulted instead.
type CatalogCache struct {
	store CatalogStore
	cache jsonStore
	ttl   time.Duration
	log   *logger.Logger
}

// NewCatalogCache creates a catalog cache in front of store.
func NewCatalogCache(store CatalogStore, cache *Cache, ttl time.Duration, log *logger.Logger) *CatalogCache {
	return newCatalogCache(store, cache, ttl, log)
}

func newCatalogCache(store CatalogStore, cache jsonStore, ttl time.Duration, log *logger.Logger) *CatalogCache {
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CatalogCache{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log.With(logger.Component("catalog_cache")),
	}
}

// ListCatalog returns the cached catalog, loading it from the store on a miss.
func (c *CatalogCache) ListCatalog(ctx context.Context) ([]progression.Achievement, error) {
	var items []progression.Achievement
	err := c.cache.Get(ctx, CatalogKey(), &items)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("catalog cache read failed", logger.Err(err))
	}

	items, err = c.store.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, CatalogKey(), items, c.ttl); err != nil {
		c.log.Warn("catalog cache write failed", logger.Err(err))
	}
	return items, nil
}

// UpsertCatalog writes through to the store and drops the cached copy.
func (c *CatalogCache) UpsertCatalog(ctx context.Context, items []progression.Achievement) (int, error) {
	n, err := c.store.UpsertCatalog(ctx, items)
	if err != nil {
		return 0, err
	}
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidation failed", logger.Err(err))
	}
	return n, nil
}

// Warm reloads the catalog from the store into Redis.
func (c *CatalogCache) Warm(ctx context.Context) (int, error) {
	items, err := c.store.ListCatalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("warm catalog: %w", err)
	}
	if err := c.cache.Set(ctx, CatalogKey(), items, c.ttl); err != nil {
		return 0, fmt.Errorf("warm catalog: %w", err)
	}
	return len(items), nil
}

// Invalidate drops the cached catalog.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, CatalogKey())
}
