package overview

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

// Windows are the trailing periods reported next to the all-time total.
var Windows = struct {
	Day, Week, Month time.Duration
}{24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour}

// Volume is traded value plus the counts behind it.
type Volume struct {
	Value decimal.Decimal `json:"value"` // Σ price × quantity
	Units int             `json:"units"`
	Sales int             `json:"sales"`
}

func (v *Volume) add(s model.Sale) {
	v.Value = v.Value.Add(s.Value())
	v.Units += s.Units()
	v.Sales++
}

type LanguageStats struct {
	Language     model.Language  `json:"language"`
	AveragePrice decimal.Decimal `json:"average_price"`
	SalesCount   int             `json:"sales_count"`
}

// Overview is the catalog-wide market rollup as of a single instant.
type Overview struct {
	AsOf           time.Time       `json:"as_of"`
	TotalVolume    Volume          `json:"total_volume"`
	Volume24h      Volume          `json:"volume_24h"`
	Volume7d       Volume          `json:"volume_7d"`
	Volume30d      Volume          `json:"volume_30d"`
	Languages      []LanguageStats `json:"languages"`
	CardCount      int             `json:"card_count"`
	ActiveListings int             `json:"active_listings"`
}

// Compute rolls up every sale strictly before now. Each trailing window is
// [now-d, now): a sale exactly at now-d belongs to the window.
func Compute(sales []model.Sale, now time.Time) Overview {
	ov := Overview{AsOf: now}

	dayStart := now.Add(-Windows.Day)
	weekStart := now.Add(-Windows.Week)
	monthStart := now.Add(-Windows.Month)

	type langAcc struct {
		sum   decimal.Decimal
		count int
	}
	langs := make(map[model.Language]*langAcc)

	for _, s := range sales {
		if !s.Timestamp.Before(now) {
			continue
		}
		ov.TotalVolume.add(s)
		if !s.Timestamp.Before(monthStart) {
			ov.Volume30d.add(s)
		}
		if !s.Timestamp.Before(weekStart) {
			ov.Volume7d.add(s)
		}
		if !s.Timestamp.Before(dayStart) {
			ov.Volume24h.add(s)
		}

		lang := model.NormalizeLanguage(string(s.Language))
		acc, ok := langs[lang]
		if !ok {
			acc = &langAcc{}
			langs[lang] = acc
		}
		acc.sum = acc.sum.Add(s.Price)
		acc.count++
	}

	ov.Languages = make([]LanguageStats, 0, len(langs))
	for lang, acc := range langs {
		ov.Languages = append(ov.Languages, LanguageStats{
			Language:     lang,
			AveragePrice: acc.sum.Div(decimal.NewFromInt(int64(acc.count))),
			SalesCount:   acc.count,
		})
	}
	sort.Slice(ov.Languages, func(i, j int) bool {
		if ov.Languages[i].SalesCount != ov.Languages[j].SalesCount {
			return ov.Languages[i].SalesCount > ov.Languages[j].SalesCount
		}
		return ov.Languages[i].Language < ov.Languages[j].Language
	})
	return ov
}

// Language returns the stats for one language, if any sales exist for it.
func (o Overview) Language(lang model.Language) (LanguageStats, bool) {
	for _, l := range o.Languages {
		if l.Language == lang {
			return l, true
		}
	}
	return LanguageStats{}, false
}
