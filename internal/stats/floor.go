package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

type FloorMethod string

const (
	FloorMedian   FloorMethod = "median"
	FloorWeighted FloorMethod = "weighted"
)

// FloorConfig controls how a floor price is derived from recent sales.
type FloorConfig struct {
	MinSales       int         // fewer matching sales than this leaves the floor absent
	MaxSales       int         // only the most recent MaxSales are used; 0 means all
	RemoveOutliers bool        // drop prices outside 1.5×IQR
	Method         FloorMethod // median (default) or recency-weighted median
}

// DefaultFloorConfig is a plain window median over every sale.
func DefaultFloorConfig() FloorConfig {
	return FloorConfig{MinSales: 1, Method: FloorMedian}
}

// FloorCalculator derives a card's market value from its sales.
type FloorCalculator struct {
	config FloorConfig
}

// NewFloorCalculator creates a calculator. MinSales is at least 1 and the
// method defaults to median.
func NewFloorCalculator(config FloorConfig) *FloorCalculator {
	if config.MinSales < 1 {
		config.MinSales = 1
	}
	if config.Method == "" {
		config.Method = FloorMedian
	}
	return &FloorCalculator{config: config}
}

// Floor returns the floor price of sales as of now. The result is invalid
// (absent) when there are not enough sales; it is never defaulted to zero.
func (f *FloorCalculator) Floor(sales []model.Sale, now time.Time) decimal.NullDecimal {
	if len(sales) < f.config.MinSales {
		return decimal.NullDecimal{}
	}

	recent := make([]model.Sale, len(sales))
	copy(recent, sales)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if f.config.MaxSales > 0 && len(recent) > f.config.MaxSales {
		recent = recent[:f.config.MaxSales]
	}

	if f.config.RemoveOutliers {
		recent = removeOutliers(recent)
		if len(recent) < f.config.MinSales {
			return decimal.NullDecimal{}
		}
	}

	if f.config.Method == FloorWeighted {
		return decimal.NewNullDecimal(weightedMedian(recent, now))
	}

	prices := Prices(recent)
	median, err := Median(prices)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(median)
}

// FilterSales keeps sales matching grade and language. Empty arguments match
// everything. A sale without a grade never matches a non-empty grade, so
// ungraded history yields no floor for a graded listing.
func FilterSales(sales []model.Sale, grade model.Grade, language model.Language) []model.Sale {
	if grade == "" && language == "" {
		return sales
	}
	out := make([]model.Sale, 0, len(sales))
	for _, s := range sales {
		if grade != "" && s.Grade != grade {
			continue
		}
		if language != "" && !strings.EqualFold(string(s.Language), string(language)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Prices extracts sale prices in input order.
func Prices(sales []model.Sale) []decimal.Decimal {
	out := make([]decimal.Decimal, len(sales))
	for i, s := range sales {
		out[i] = s.Price
	}
	return out
}

// removeOutliers drops sales priced outside [Q1-1.5·IQR, Q3+1.5·IQR].
// If that would remove more than half of the sales, the input is kept.
func removeOutliers(sales []model.Sale) []model.Sale {
	if len(sales) < 4 {
		return sales
	}
	sorted := sortedCopy(Prices(sales))
	half := len(sorted) / 2
	q1 := medianOfSorted(sorted[:half])
	q3 := medianOfSorted(sorted[half:])
	spread := q3.Sub(q1).Mul(decimal.NewFromFloat(1.5))
	lower, upper := q1.Sub(spread), q3.Add(spread)

	kept := make([]model.Sale, 0, len(sales))
	for _, s := range sales {
		if s.Price.GreaterThanOrEqual(lower) && s.Price.LessThanOrEqual(upper) {
			kept = append(kept, s)
		}
	}
	if len(kept)*2 < len(sales) {
		return sales
	}
	return kept
}

// weightedMedian weights each sale by max(0.1, 1/(1+days_ago/10)) and
// returns the first price whose cumulative weight reaches half the total.
func weightedMedian(sales []model.Sale, now time.Time) decimal.Decimal {
	type weighted struct {
		price  decimal.Decimal
		weight float64
	}

	points := make([]weighted, len(sales))
	var total float64
	for i, s := range sales {
		daysAgo := float64(int(now.Sub(s.Timestamp).Hours() / 24))
		if daysAgo < 0 {
			daysAgo = 0
		}
		w := 1.0 / (1.0 + daysAgo/10.0)
		if w < 0.1 {
			w = 0.1
		}
		points[i] = weighted{price: s.Price, weight: w}
		total += w
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].price.LessThan(points[j].price) })

	var cumulative float64
	for _, p := range points {
		cumulative += p.weight / total
		if cumulative >= 0.5 {
			return p.price
		}
	}
	return points[len(points)-1].price
}
