package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guarzo/gradearb/internal/model"
)

type countingCatalog struct {
	Catalog
	cardCalls    atomic.Int32
	listingCalls atomic.Int32
	fail         atomic.Bool
	gate         chan struct{}
}

func (c *countingCatalog) GetCard(ctx context.Context, id string) (model.Card, error) {
	c.cardCalls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail.Load() {
		return model.Card{}, unavailable("test", errors.New("down"))
	}
	return c.Catalog.GetCard(ctx, id)
}

func (c *countingCatalog) GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error) {
	c.listingCalls.Add(1)
	return c.Catalog.GetActiveListing(ctx, cardID)
}

func TestCachedCatalog_HitsAndExpiry(t *testing.T) {
	inner := &countingCatalog{Catalog: seeded()}
	cc, err := NewCachedCatalog(inner, 16, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedCatalog: %v", err)
	}
	clock := t0
	cc.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if c, err := cc.GetCard(ctx, "a"); err != nil || c.Name != "Charizard" {
			t.Fatalf("GetCard: %+v, %v", c, err)
		}
	}
	if n := inner.cardCalls.Load(); n != 1 {
		t.Errorf("Expected 1 upstream call, got %d", n)
	}

	clock = clock.Add(2 * time.Minute)
	cc.GetCard(ctx, "a")
	if n := inner.cardCalls.Load(); n != 2 {
		t.Errorf("Expected refetch after ttl, got %d calls", n)
	}

	// absent listings are cached as well
	cc.GetActiveListing(ctx, "b")
	if l, err := cc.GetActiveListing(ctx, "b"); l != nil || err != nil {
		t.Errorf("Expected no listing, got %+v, %v", l, err)
	}
	if n := inner.listingCalls.Load(); n != 1 {
		t.Errorf("Expected 1 listing call, got %d", n)
	}

	cc.Purge()
	if cc.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d", cc.Len())
	}
}

func TestCachedCatalog_ErrorsAreNotCached(t *testing.T) {
	inner := &countingCatalog{Catalog: seeded()}
	inner.fail.Store(true)
	cc, _ := NewCachedCatalog(inner, 16, time.Minute)
	ctx := context.Background()

	if _, err := cc.GetCard(ctx, "a"); !IsUnavailable(err) {
		t.Fatalf("Expected unavailable, got %v", err)
	}
	inner.fail.Store(false)
	if _, err := cc.GetCard(ctx, "a"); err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if _, err := cc.GetCard(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError to pass through, got %v", err)
	}
}

func TestCachedCatalog_CoalescesConcurrentMisses(t *testing.T) {
	inner := &countingCatalog{Catalog: seeded(), gate: make(chan struct{})}
	cc, _ := NewCachedCatalog(inner, 16, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cc.GetCard(ctx, "a"); err != nil {
				t.Errorf("GetCard: %v", err)
			}
		}()
	}

	// let the goroutines pile up on the first fetch
	time.Sleep(50 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	if n := inner.cardCalls.Load(); n > 2 {
		t.Errorf("Expected concurrent misses to share a fetch, got %d calls", n)
	}
}

func TestWithCatalogCache(t *testing.T) {
	src, err := WithCatalogCache(seeded(), 0, 0)
	if err != nil {
		t.Fatalf("WithCatalogCache: %v", err)
	}
	var _ Source = src
	sales, err := src.GetSales(context.Background(), ForCard("a"), t0, time.Time{})
	if err != nil || len(sales) != 2 {
		t.Errorf("Expected ledger calls to pass through, got %d, %v", len(sales), err)
	}
}
