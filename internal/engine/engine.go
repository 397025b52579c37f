package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/stats"
	"github.com/guarzo/gradearb/internal/trend"
)

const day = 24 * time.Hour

// Config holds the analytics policy. Zero fields take the defaults.
type Config struct {
	FloorWindow     time.Duration     // sales considered for a card's floor price
	Floor           stats.FloorConfig // floor price method
	Scoring         scoring.Config    // fee model
	MaxPrice        decimal.Decimal   // top of the max-price filter
	TrendWidth      bucket.Width      // bucket width of the series behind movers and trending
	TrendLookback   time.Duration     // history loaded for movers and the trending baseline
	TrendMultiplier decimal.Decimal
	Windows         []time.Duration // ranking windows computed by Pass
	Workers         int             // concurrent per-card fetches
}

// DefaultConfig returns a 30-day median floor, daily trend buckets and 24h/7d windows.
func DefaultConfig() Config {
	return Config{
		FloorWindow:     30 * day,
		Floor:           stats.DefaultFloorConfig(),
		MaxPrice:        filter.DefaultMaxPrice,
		TrendWidth:      bucket.Daily,
		TrendLookback:   30 * day,
		TrendMultiplier: trend.DefaultMultiplier,
		Windows:         []time.Duration{day, 7 * day},
		Workers:         8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FloorWindow <= 0 {
		c.FloorWindow = d.FloorWindow
	}
	if c.Floor.Method == "" {
		c.Floor.Method = d.Floor.Method
	}
	if !c.MaxPrice.IsPositive() {
		c.MaxPrice = d.MaxPrice
	}
	if c.TrendWidth <= 0 {
		c.TrendWidth = d.TrendWidth
	}
	if c.TrendLookback <= 0 {
		c.TrendLookback = d.TrendLookback
	}
	if !c.TrendMultiplier.IsPositive() {
		c.TrendMultiplier = d.TrendMultiplier
	}
	if len(c.Windows) == 0 {
		c.Windows = d.Windows
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Engine computes every derived view from the sale ledger and catalog. It
// holds no mutable state between calls; each call is a function of the
// sources at the instant the clock returns.
type Engine struct {
	sales   ledger.SaleLedger
	catalog ledger.Catalog
	cfg     Config
	floor   *stats.FloorCalculator
	scorer  *scoring.Scorer
	filter  *filter.Evaluator
	now     func() time.Time
	log     *logrus.Entry
}

type Option func(*Engine)

// WithClock fixes "now", mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger for pass diagnostics.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine reading sales and catalog data from the given sources.
func New(sales ledger.SaleLedger, catalog ledger.Catalog, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		sales:   sales,
		catalog: catalog,
		cfg:     cfg,
		floor:   stats.NewFloorCalculator(cfg.Floor),
		scorer:  scoring.NewScorer(cfg.Scoring),
		filter:  filter.NewEvaluator(cfg.MaxPrice),
		now:     time.Now,
		log:     logger.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config { return e.cfg }

// cardResult is everything one card contributes to a pass.
type cardResult struct {
	card        model.Card
	series      trend.Series
	opportunity *scoring.Opportunity
	listed      bool
}

// salesFor treats ErrNoData as an empty history.
func (e *Engine) salesFor(ctx context.Context, sel ledger.Selector, start, end time.Time) ([]model.Sale, error) {
	sales, err := e.sales.GetSales(ctx, sel, start, end)
	if errors.Is(err, ledger.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sales for %s: %w", sel, err)
	}
	return sales, nil
}

func (e *Engine) analyzeCard(ctx context.Context, card model.Card, now time.Time, lookback time.Duration) (cardResult, error) {
	res := cardResult{card: card}

	from := e.cfg.TrendWidth.Truncate(now.Add(-lookback))
	fetch := from
	if floorStart := now.Add(-e.cfg.FloorWindow); floorStart.Before(fetch) {
		fetch = floorStart
	}
	sales, err := e.salesFor(ctx, ledger.ForCard(card.ID), fetch, now)
	if err != nil {
		return res, err
	}

	buckets, err := bucket.Aggregate(sales, e.cfg.TrendWidth, from, now)
	if err != nil {
		return res, fmt.Errorf("bucket %s: %w", card.ID, err)
	}
	res.series = trend.Series{CardID: card.ID, Buckets: buckets, Sales: salesSince(sales, from), From: from}

	listing, err := e.catalog.GetActiveListing(ctx, card.ID)
	if err != nil {
		return res, fmt.Errorf("get listing for %s: %w", card.ID, err)
	}
	if listing != nil {
		res.listed = true
		res.opportunity = e.score(card, *listing, sales, now)
	}
	return res, nil
}

// score derives the floor from the card's recent sales, restricted to the
// listing's grade when it has one, and scores the listing against it.
func (e *Engine) score(card model.Card, listing model.Listing, sales []model.Sale, now time.Time) *scoring.Opportunity {
	recent := salesSince(sales, now.Add(-e.cfg.FloorWindow))
	window := stats.FilterSales(recent, listing.Grade, "")
	if len(window) == 0 && len(recent) > 0 {
		e.log.WithFields(logrus.Fields{
			"card_id": card.ID,
			"grade":   listing.Grade,
			"sales":   len(recent),
		}).Debug("No sales match the listing grade; floor is absent")
	}
	floor := e.floor.Floor(window, now)
	return e.scorer.ScoreListing(card, listing, floor, len(window))
}

func salesSince(sales []model.Sale, start time.Time) []model.Sale {
	for i, s := range sales {
		if !s.Timestamp.Before(start) {
			return sales[i:]
		}
	}
	return nil
}

// forEachCard runs fn for every card on at most Workers goroutines. The
// first error cancels the rest.
func (e *Engine) forEachCard(ctx context.Context, cards []model.Card, fn func(ctx context.Context, i int, card model.Card) error) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.cfg.Workers))

	for i, card := range cards {
		i, card := i, card
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return fn(gctx, i, card)
		})
	}
	return g.Wait()
}

func (e *Engine) analyzeAll(ctx context.Context, now time.Time, lookback time.Duration) ([]cardResult, error) {
	cards, err := e.catalog.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	results := make([]cardResult, len(cards))
	err = e.forEachCard(ctx, cards, func(ctx context.Context, i int, card model.Card) error {
		r, err := e.analyzeCard(ctx, card, now, lookback)
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// lookbackFor returns enough history to place a reference bucket and a
// trailing baseline behind window.
func (e *Engine) lookbackFor(window time.Duration) time.Duration {
	need := 2*window + e.cfg.TrendWidth.Duration()
	if e.cfg.TrendLookback > need {
		return e.cfg.TrendLookback
	}
	return need
}

func opportunitiesOf(results []cardResult) []scoring.Opportunity {
	var opps []scoring.Opportunity
	for _, r := range results {
		if r.opportunity != nil {
			opps = append(opps, *r.opportunity)
		}
	}
	filter.SortByMargin(opps)
	return opps
}

func seriesOf(results []cardResult) []trend.Series {
	out := make([]trend.Series, 0, len(results))
	for _, r := range results {
		out = append(out, r.series)
	}
	return out
}

func checkWindow(now time.Time, window time.Duration) error {
	if window <= 0 {
		return &bucket.InvalidRangeError{Start: now.Add(-window), End: now, Reason: "window must be positive"}
	}
	return nil
}
