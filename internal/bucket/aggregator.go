package bucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/stats"
)

// Width is the duration of one bucket. Buckets are aligned by truncating
// timestamps to the width in UTC, so Daily buckets start at midnight UTC
// and Weekly buckets on Monday.
type Width time.Duration

const (
	Daily  = Width(24 * time.Hour)
	Weekly = Width(7 * 24 * time.Hour)
)

// ParseWidth accepts "daily", "weekly" or any time.ParseDuration string.
func ParseWidth(s string) (Width, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily", "1d":
		return Daily, nil
	case "weekly", "7d":
		return Weekly, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse bucket width %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bucket width must be positive, got %s", d)
	}
	return Width(d), nil
}

// Duration returns the width as a time.Duration.
func (w Width) Duration() time.Duration { return time.Duration(w) }

// String returns "daily", "weekly" or the duration text.
func (w Width) String() string {
	switch w {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	}
	return time.Duration(w).String()
}

// Truncate returns the start of the bucket containing t.
func (w Width) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Duration(w))
}

// PriceBucket is a derived OHLC summary of the sales in
// [Start, Start+width). Average is the simple mean of the constituent sale
// prices. Buckets with no sales carry the previous close in every price
// field and have Volume 0.
type PriceBucket struct {
	Start   time.Time       `json:"bucket_start"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Average decimal.Decimal `json:"average"`
	Median  decimal.Decimal `json:"median"`
	Volume  int             `json:"volume"`
	Sales   int             `json:"sales"`
}

// Empty reports whether the bucket is a carry-forward bucket.
func (b PriceBucket) Empty() bool { return b.Sales == 0 }

// Aggregate groups timestamp-ordered sales into buckets of the given width
// covering [start, end). The range is widened back to the start of the
// bucket containing start, so the first bucket covers its full width and
// callers should pass sales from width.Truncate(start) onwards. Sales outside
// the range are ignored. Empty buckets before the first sale are omitted;
// later empty buckets carry the previous close forward.
func Aggregate(sales []model.Sale, width Width, start, end time.Time) ([]PriceBucket, error) {
	if width <= 0 {
		return nil, &InvalidRangeError{Start: start, End: end, Reason: "bucket width must be positive"}
	}
	if !start.Before(end) {
		return nil, &InvalidRangeError{Start: start, End: end, Reason: "start must be before end"}
	}
	if err := checkOrdered(sales); err != nil {
		return nil, err
	}

	start, end = width.Truncate(start), end.UTC()
	step := width.Duration()

	var (
		out       []PriceBucket
		lastClose decimal.Decimal
		havePrior bool
		i         int
	)

	// skip sales before the requested range
	for i < len(sales) && sales[i].Timestamp.Before(start) {
		i++
	}

	for bucketStart := start; bucketStart.Before(end); bucketStart = bucketStart.Add(step) {
		bucketEnd := bucketStart.Add(step)
		if bucketEnd.After(end) {
			bucketEnd = end
		}

		j := i
		for j < len(sales) && sales[j].Timestamp.Before(bucketEnd) {
			j++
		}
		members := sales[i:j]
		i = j

		if len(members) == 0 {
			if !havePrior {
				continue
			}
			out = append(out, carryForward(bucketStart, lastClose))
			continue
		}

		b := summarize(bucketStart, members)
		out = append(out, b)
		lastClose = b.Close
		havePrior = true
	}

	return out, nil
}

func summarize(bucketStart time.Time, members []model.Sale) PriceBucket {
	b := PriceBucket{
		Start: bucketStart,
		Open:  members[0].Price,
		High:  members[0].Price,
		Low:   members[0].Price,
		Close: members[len(members)-1].Price,
		Sales: len(members),
	}
	for _, s := range members {
		if s.Price.GreaterThan(b.High) {
			b.High = s.Price
		}
		if s.Price.LessThan(b.Low) {
			b.Low = s.Price
		}
		b.Volume += s.Units()
	}

	prices := stats.Prices(members)
	// members is non-empty, so neither call can fail
	b.Average, _ = stats.Mean(prices)
	b.Median, _ = stats.Median(prices)
	return b
}

func carryForward(bucketStart time.Time, price decimal.Decimal) PriceBucket {
	return PriceBucket{
		Start:   bucketStart,
		Open:    price,
		High:    price,
		Low:     price,
		Close:   price,
		Average: price,
		Median:  price,
	}
}

func checkOrdered(sales []model.Sale) error {
	for i := 1; i < len(sales); i++ {
		if sales[i].Timestamp.Before(sales[i-1].Timestamp) {
			return &UnsortedInputError{
				Index:    i,
				Previous: sales[i-1].Timestamp,
				Got:      sales[i].Timestamp,
			}
		}
	}
	return nil
}

// TotalVolume sums bucket volumes.
func TotalVolume(buckets []PriceBucket) int {
	var total int
	for _, b := range buckets {
		total += b.Volume
	}
	return total
}

// MarshalText renders the width as "daily", "weekly" or a duration string.
func (w Width) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Width) UnmarshalText(b []byte) error {
	parsed, err := ParseWidth(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
