package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrEmptyInput is returned when statistics are requested over zero prices.
// Callers report an absent value instead of substituting zero.
var ErrEmptyInput = errors.New("stats: empty input")

var two = decimal.NewFromInt(2)

// Summary describes a set of price points.
type Summary struct {
	Count  int             `json:"count"`
	Mean   decimal.Decimal `json:"mean"`
	Median decimal.Decimal `json:"median"`
	Min    decimal.Decimal `json:"min"`
	Max    decimal.Decimal `json:"max"`
	StdDev decimal.Decimal `json:"stddev"`
	// Volatility is the coefficient of variation (stddev / mean), 0 below two points.
	Volatility float64 `json:"volatility"`
}

// Summarize computes mean, median, min, max and dispersion over prices.
// The input slice is never reordered.
func Summarize(prices []decimal.Decimal) (Summary, error) {
	if len(prices) == 0 {
		return Summary{}, ErrEmptyInput
	}

	sorted := sortedCopy(prices)
	mean := sum(sorted).Div(decimal.NewFromInt(int64(len(sorted))))

	s := Summary{
		Count:  len(sorted),
		Mean:   mean,
		Median: medianOfSorted(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}

	std := sampleStdDev(sorted, mean)
	s.StdDev = decimal.NewFromFloat(std)
	if m := mean.InexactFloat64(); m != 0 {
		s.Volatility = std / m
	}
	return s, nil
}

// Median returns the middle price, or the mean of the two central prices
// for an even count.
func Median(prices []decimal.Decimal) (decimal.Decimal, error) {
	if len(prices) == 0 {
		return decimal.Zero, ErrEmptyInput
	}
	return medianOfSorted(sortedCopy(prices)), nil
}

// Mean returns the arithmetic mean of prices.
func Mean(prices []decimal.Decimal) (decimal.Decimal, error) {
	if len(prices) == 0 {
		return decimal.Zero, ErrEmptyInput
	}
	return sum(prices).Div(decimal.NewFromInt(int64(len(prices)))), nil
}

func sortedCopy(prices []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(prices))
	copy(out, prices)
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func medianOfSorted(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}

func sum(prices []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p)
	}
	return total
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(prices []decimal.Decimal, mean decimal.Decimal) float64 {
	if len(prices) < 2 {
		return 0
	}
	m := mean.InexactFloat64()
	var varianceSum float64
	for _, p := range prices {
		diff := p.InexactFloat64() - m
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(prices)-1))
}
