package ledger

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/gradearb/internal/model"
)

const (
	defaultCacheSize = 10000
	defaultCacheTTL  = 30 * time.Second
)

type cachedEntry struct {
	value     any
	fetchedAt time.Time
}

// CachedCatalog fronts a Catalog with a bounded LRU. Entries expire after
// ttl and concurrent misses for the same key share one upstream call.
// Errors are never cached.
type CachedCatalog struct {
	next  Catalog
	cache *lru.Cache
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedCatalog caches up to size catalog lookups from next for ttl.
func NewCachedCatalog(next Catalog, size int, ttl time.Duration) (*CachedCatalog, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}
	return &CachedCatalog{next: next, cache: cache, ttl: ttl, now: time.Now}, nil
}

func (c *CachedCatalog) lookup(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := c.cache.Get(key); ok {
		if e, ok := v.(cachedEntry); ok && c.now().Sub(e.fetchedAt) < c.ttl {
			return e.value, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, cachedEntry{value: value, fetchedAt: c.now()})
		return value, nil
	})
	return v, err
}

func (c *CachedCatalog) GetCard(ctx context.Context, id string) (model.Card, error) {
	v, err := c.lookup(ctx, "card:"+id, func(ctx context.Context) (any, error) {
		return c.next.GetCard(ctx, id)
	})
	if err != nil {
		return model.Card{}, err
	}
	return v.(model.Card), nil
}

// GetActiveListing caches "no listing" too, so an unlisted card does not
// hit the backend on every pass.
func (c *CachedCatalog) GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error) {
	v, err := c.lookup(ctx, "listing:"+cardID, func(ctx context.Context) (any, error) {
		return c.next.GetActiveListing(ctx, cardID)
	})
	if err != nil {
		return nil, err
	}
	l, _ := v.(*model.Listing)
	if l == nil {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (c *CachedCatalog) ListCards(ctx context.Context) ([]model.Card, error) {
	v, err := c.lookup(ctx, "cards", func(ctx context.Context) (any, error) {
		return c.next.ListCards(ctx)
	})
	if err != nil {
		return nil, err
	}
	cards := v.([]model.Card)
	out := make([]model.Card, len(cards))
	copy(out, cards)
	return out, nil
}

// Purge drops every cached entry.
func (c *CachedCatalog) Purge() {
	c.cache.Purge()
}

func (c *CachedCatalog) Len() int {
	return c.cache.Len()
}

// CachedSource pairs a ledger with a cached catalog.
type CachedSource struct {
	SaleLedger
	*CachedCatalog
}

// WithCatalogCache wraps src's catalog side in a CachedCatalog.
func WithCatalogCache(src Source, size int, ttl time.Duration) (*CachedSource, error) {
	cc, err := NewCachedCatalog(src, size, ttl)
	if err != nil {
		return nil, err
	}
	return &CachedSource{SaleLedger: src, CachedCatalog: cc}, nil
}
