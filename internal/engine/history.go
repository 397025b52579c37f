package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/overview"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/stats"
	"github.com/guarzo/gradearb/internal/trend"
)

// HistorySummary describes the sales behind a price history. Price fields
// are absent when the window holds no sales.
type HistorySummary struct {
	AveragePrice decimal.NullDecimal `json:"average_price"`
	CurrentFloor decimal.NullDecimal `json:"current_floor"`
	HighestSale  decimal.NullDecimal `json:"highest_sale"`
	LowestSale   decimal.NullDecimal `json:"lowest_sale"`
	TotalSales   int                 `json:"total_sales"`
	Volume       int                 `json:"volume"`
	Volatility   float64             `json:"volatility"`
}

type History struct {
	Card     *model.Card          `json:"card,omitempty"`
	Selector string               `json:"selector"`
	Start    time.Time            `json:"start"`
	End      time.Time            `json:"end"`
	Width    bucket.Width         `json:"bucket_width"`
	Buckets  []bucket.PriceBucket `json:"buckets"`
	Summary  HistorySummary       `json:"summary"`
}

// PriceHistory buckets one card's sales over [now-window, now). An unknown
// card is a NotFoundError; a known card without sales yields no buckets.
func (e *Engine) PriceHistory(ctx context.Context, cardID string, window time.Duration, width bucket.Width) (*History, error) {
	card, err := e.catalog.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", cardID, err)
	}
	h, err := e.PriceHistoryFor(ctx, ledger.ForCard(cardID), window, width)
	if err != nil {
		return nil, err
	}
	h.Card = &card
	return h, nil
}

// PriceHistoryFor is PriceHistory over any selector, such as a whole set.
func (e *Engine) PriceHistoryFor(ctx context.Context, sel ledger.Selector, window time.Duration, width bucket.Width) (*History, error) {
	now := e.now().UTC()
	if err := checkWindow(now, window); err != nil {
		return nil, err
	}
	start := now.Add(-window)

	// the first bucket reaches back to its boundary; the summary does not
	sales, err := e.salesFor(ctx, sel, width.Truncate(start), now)
	if err != nil {
		return nil, err
	}
	buckets, err := bucket.Aggregate(sales, width, start, now)
	if err != nil {
		return nil, err
	}
	sales = salesSince(sales, start)

	return &History{
		Selector: sel.String(),
		Start:    start,
		End:      now,
		Width:    width,
		Buckets:  buckets,
		Summary:  e.summarize(sales, now),
	}, nil
}

func (e *Engine) summarize(sales []model.Sale, now time.Time) HistorySummary {
	sum := HistorySummary{TotalSales: len(sales)}
	for _, s := range sales {
		sum.Volume += s.Units()
	}

	st, err := stats.Summarize(stats.Prices(sales))
	if errors.Is(err, stats.ErrEmptyInput) {
		return sum
	}
	sum.AveragePrice = decimal.NewNullDecimal(model.Round2(st.Mean))
	sum.HighestSale = decimal.NewNullDecimal(st.Max)
	sum.LowestSale = decimal.NewNullDecimal(st.Min)
	sum.Volatility = st.Volatility
	sum.CurrentFloor = e.floor.Floor(salesSince(sales, now.Add(-e.cfg.FloorWindow)), now)
	return sum
}

// Opportunities scores every card with an active listing and applies the
// predicates. The unsorted default order is profit margin descending.
func (e *Engine) Opportunities(ctx context.Context, p filter.Predicates) ([]scoring.Opportunity, error) {
	now := e.now().UTC()
	results, err := e.analyzeAll(ctx, now, e.cfg.FloorWindow)
	if err != nil {
		return nil, err
	}
	return e.filter.Apply(opportunitiesOf(results), p), nil
}

// Filter applies predicates to an already computed snapshot.
func (e *Engine) Filter(snap *Snapshot, p filter.Predicates) []scoring.Opportunity {
	if snap == nil {
		return nil
	}
	return e.filter.Apply(snap.Opportunities, p)
}

// TopMovers ranks every card by its price change over window.
func (e *Engine) TopMovers(ctx context.Context, window time.Duration, limit int) ([]trend.Mover, error) {
	now := e.now().UTC()
	if err := checkWindow(now, window); err != nil {
		return nil, err
	}
	results, err := e.analyzeAll(ctx, now, e.lookbackFor(window))
	if err != nil {
		return nil, err
	}
	return trend.TopMovers(seriesOf(results), now, window, limit), nil
}

// TrendingCards returns the cards whose volume over window outpaces their baseline.
func (e *Engine) TrendingCards(ctx context.Context, window time.Duration, limit int) ([]trend.TrendingCard, error) {
	now := e.now().UTC()
	if err := checkWindow(now, window); err != nil {
		return nil, err
	}
	results, err := e.analyzeAll(ctx, now, e.lookbackFor(window))
	if err != nil {
		return nil, err
	}
	return trend.Trending(seriesOf(results), now, window, e.cfg.TrendMultiplier, limit), nil
}

// MarketOverview rolls up the whole ledger and counts catalog cards and
// active listings.
func (e *Engine) MarketOverview(ctx context.Context) (overview.Overview, error) {
	now := e.now().UTC()
	sales, err := e.salesFor(ctx, ledger.Selector{}, time.Time{}, now)
	if err != nil {
		return overview.Overview{}, err
	}
	cards, err := e.catalog.ListCards(ctx)
	if err != nil {
		return overview.Overview{}, fmt.Errorf("list cards: %w", err)
	}

	listed := make([]bool, len(cards))
	err = e.forEachCard(ctx, cards, func(ctx context.Context, i int, card model.Card) error {
		l, err := e.catalog.GetActiveListing(ctx, card.ID)
		if err != nil {
			return fmt.Errorf("get listing for %s: %w", card.ID, err)
		}
		listed[i] = l != nil
		return nil
	})
	if err != nil {
		return overview.Overview{}, err
	}

	ov := overview.Compute(sales, now)
	ov.CardCount = len(cards)
	for _, ok := range listed {
		if ok {
			ov.ActiveListings++
		}
	}
	return ov, nil
}
