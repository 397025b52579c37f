package trend

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/model"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// DefaultMultiplier is how far recent volume must exceed the baseline for a
// card to count as trending.
var DefaultMultiplier = decimal.RequireFromString("1.5")

// Series is one card's bucket history, oldest first, together with the
// timestamp-ordered sales behind it. From is where the observed history
// starts; when zero, the first sale stands in for it.
type Series struct {
	CardID  string
	Buckets []bucket.PriceBucket
	Sales   []model.Sale
	From    time.Time
}

// Change is the price movement of one card over a window.
type Change struct {
	CardID         string          `json:"card_id"`
	ReferenceClose decimal.Decimal `json:"reference_close"`
	LatestClose    decimal.Decimal `json:"latest_close"`
	ChangePct      decimal.Decimal `json:"change_pct"`
	Volume         int             `json:"volume"`
	Direction      Direction       `json:"direction"`
}

// Mover is a ranked Change.
type Mover struct {
	Change
	Window time.Duration `json:"window"`
	Rank   int           `json:"rank"`
}

// TrendingCard is a card whose recent volume outpaces its baseline. The
// averages are units sold per window length.
type TrendingCard struct {
	CardID          string              `json:"card_id"`
	RecentVolume    int                 `json:"recent_volume"`
	RecentAverage   decimal.Decimal     `json:"recent_average_volume"`
	BaselineAverage decimal.Decimal     `json:"baseline_average_volume"`
	VolumeRatio     decimal.Decimal     `json:"volume_ratio"`
	ChangePct       decimal.NullDecimal `json:"change_pct"`
	Window          time.Duration       `json:"window"`
	Rank            int                 `json:"rank"`
}

// ComputeChange measures (latest_close - reference_close) / reference_close,
// where the reference is the last bucket starting at or before now-window.
// ok is false when there is no such bucket or it is also the latest one.
func ComputeChange(s Series, now time.Time, window time.Duration) (Change, bool) {
	latest := -1
	for i, b := range s.Buckets {
		if b.Start.After(now) {
			break
		}
		latest = i
	}
	if latest < 1 {
		return Change{}, false
	}

	cutoff := now.Add(-window)
	ref := -1
	for i := 0; i <= latest; i++ {
		if s.Buckets[i].Start.After(cutoff) {
			break
		}
		ref = i
	}
	if ref < 0 || ref >= latest {
		return Change{}, false
	}

	refClose := s.Buckets[ref].Close
	if !refClose.IsPositive() {
		return Change{}, false
	}

	latestClose := s.Buckets[latest].Close
	c := Change{
		CardID:         s.CardID,
		ReferenceClose: refClose,
		LatestClose:    latestClose,
		ChangePct:      latestClose.Sub(refClose).Div(refClose),
	}
	for i := ref + 1; i <= latest; i++ {
		c.Volume += s.Buckets[i].Volume
	}

	switch c.ChangePct.Sign() {
	case 1:
		c.Direction = DirectionUp
	case -1:
		c.Direction = DirectionDown
	default:
		c.Direction = DirectionFlat
	}
	return c, true
}

// TopMovers ranks every series by |change_pct| descending, then volume
// descending, then card id ascending. The ranking is rebuilt from the full
// candidate set on every call. limit <= 0 returns all movers.
func TopMovers(series []Series, now time.Time, window time.Duration, limit int) []Mover {
	movers := make([]Mover, 0, len(series))
	for _, s := range series {
		if c, ok := ComputeChange(s, now, window); ok {
			movers = append(movers, Mover{Change: c, Window: window})
		}
	}

	sort.SliceStable(movers, func(i, j int) bool {
		a, b := movers[i], movers[j]
		if cmp := a.ChangePct.Abs().Cmp(b.ChangePct.Abs()); cmp != 0 {
			return cmp > 0
		}
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		return a.CardID < b.CardID
	})

	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}
	for i := range movers {
		movers[i].Rank = i + 1
	}
	return movers
}

// Classify compares the units sold in the most recent window
// [now-window, now) against the average units per window over the trailing
// baseline [From, now-window). Volume is assigned by sale timestamp, so a
// bucket straddling the cutoff is split between the two. trending is true
// when the recent volume exceeds multiplier × baseline. ok is false when the
// baseline is shorter than one window or has no sales.
func Classify(s Series, now time.Time, window time.Duration, multiplier decimal.Decimal) (TrendingCard, bool, bool) {
	if window <= 0 {
		return TrendingCard{}, false, false
	}
	from := s.From
	if from.IsZero() && len(s.Sales) > 0 {
		from = s.Sales[0].Timestamp
	}
	cutoff := now.Add(-window)
	span := cutoff.Sub(from)
	if span < window {
		return TrendingCard{}, false, false
	}

	var recentVol, baseVol int
	for _, sale := range s.Sales {
		switch ts := sale.Timestamp; {
		case ts.Before(from), !ts.Before(now):
			// outside the observed history
		case ts.Before(cutoff):
			baseVol += sale.Units()
		default:
			recentVol += sale.Units()
		}
	}
	if baseVol == 0 {
		return TrendingCard{}, false, false
	}

	periods := decimal.NewFromInt(int64(span)).Div(decimal.NewFromInt(int64(window)))
	recentAvg := decimal.NewFromInt(int64(recentVol))
	baseAvg := decimal.NewFromInt(int64(baseVol)).Div(periods)

	tc := TrendingCard{
		CardID:          s.CardID,
		RecentVolume:    recentVol,
		RecentAverage:   recentAvg,
		BaselineAverage: baseAvg,
		VolumeRatio:     recentAvg.Div(baseAvg),
		Window:          window,
	}
	if c, ok := ComputeChange(s, now, window); ok {
		tc.ChangePct = decimal.NewNullDecimal(c.ChangePct)
	}

	trending := recentAvg.GreaterThan(baseAvg.Mul(multiplier))
	return tc, trending, true
}

// Trending returns the trending cards ordered by volume ratio descending,
// then recent volume descending, then card id ascending.
func Trending(series []Series, now time.Time, window time.Duration, multiplier decimal.Decimal, limit int) []TrendingCard {
	var out []TrendingCard
	for _, s := range series {
		tc, trending, ok := Classify(s, now, window, multiplier)
		if ok && trending {
			out = append(out, tc)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if cmp := a.VolumeRatio.Cmp(b.VolumeRatio); cmp != 0 {
			return cmp > 0
		}
		if a.RecentVolume != b.RecentVolume {
			return a.RecentVolume > b.RecentVolume
		}
		return a.CardID < b.CardID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
