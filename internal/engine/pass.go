package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/overview"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

// Ranking holds the movers and trending lists for one window. Both lists
// are complete; callers truncate.
type Ranking struct {
	Window   time.Duration        `json:"window"`
	Label    string               `json:"label"`
	Movers   []trend.Mover        `json:"movers"`
	Trending []trend.TrendingCard `json:"trending"`
}

// Snapshot is the output of one full pass, consistent as of AsOf.
type Snapshot struct {
	AsOf          time.Time             `json:"as_of"`
	Opportunities []scoring.Opportunity `json:"opportunities"`
	Rankings      []Ranking             `json:"rankings"`
	Overview      overview.Overview     `json:"overview"`
	CardCount     int                   `json:"card_count"`
	Elapsed       time.Duration         `json:"elapsed"`
}

// Ranking returns the lists computed for window.
func (s *Snapshot) Ranking(window time.Duration) (Ranking, bool) {
	for _, r := range s.Rankings {
		if r.Window == window {
			return r, true
		}
	}
	return Ranking{}, false
}

// Pass computes every view for a single instant. Per-card analysis and the
// ledger-wide rollup run concurrently; any error discards the whole result.
func (e *Engine) Pass(ctx context.Context) (*Snapshot, error) {
	started := time.Now()
	now := e.now().UTC()

	lookback := e.cfg.TrendLookback
	for _, w := range e.cfg.Windows {
		if lb := e.lookbackFor(w); lb > lookback {
			lookback = lb
		}
	}

	var (
		results []cardResult
		all     []model.Sale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, err = e.analyzeAll(gctx, now, lookback)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = e.salesFor(gctx, ledger.Selector{}, time.Time{}, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := seriesOf(results)
	snap := &Snapshot{
		AsOf:          now,
		Opportunities: opportunitiesOf(results),
		Overview:      overview.Compute(all, now),
		CardCount:     len(results),
	}
	for _, w := range e.cfg.Windows {
		snap.Rankings = append(snap.Rankings, Ranking{
			Window:   w,
			Label:    WindowLabel(w),
			Movers:   trend.TopMovers(series, now, w, 0),
			Trending: trend.Trending(series, now, w, e.cfg.TrendMultiplier, 0),
		})
	}

	snap.Overview.CardCount = len(results)
	for _, r := range results {
		if r.listed {
			snap.Overview.ActiveListings++
		}
	}
	snap.Elapsed = time.Since(started)

	e.log.WithFields(logrus.Fields{
		"cards":         snap.CardCount,
		"opportunities": len(snap.Opportunities),
		"elapsed_ms":    snap.Elapsed.Milliseconds(),
	}).Debug("Aggregation pass complete")
	return snap, nil
}

// WindowLabel renders whole days as "7d" (one day as "24h") and anything
// else with time.Duration formatting.
func WindowLabel(d time.Duration) string {
	switch {
	case d == day:
		return "24h"
	case d > 0 && d%day == 0:
		return strconv.Itoa(int(d/day)) + "d"
	}
	return d.String()
}

// ParseWindow accepts day counts ("7d") as well as time.ParseDuration syntax.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(days) * day, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return d, nil
}
