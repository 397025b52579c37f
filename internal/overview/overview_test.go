package overview

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

var now = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func sale(ago time.Duration, price string, qty int, lang model.Language) model.Sale {
	return model.Sale{
		CardID:    "c",
		Timestamp: now.Add(-ago),
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		Language:  lang,
	}
}

func TestCompute_Windows(t *testing.T) {
	sales := []model.Sale{
		sale(time.Hour, "100", 1, model.LanguageEN),
		sale(24*time.Hour, "50", 2, model.LanguageEN), // exactly at the 24h boundary
		sale(24*time.Hour+time.Second, "10", 1, model.LanguageJP),
		sale(6*24*time.Hour, "30", 1, model.LanguageFR),
		sale(29*24*time.Hour, "20", 1, model.LanguageJP),
		sale(60*24*time.Hour, "5", 4, model.LanguageEN),
		sale(-time.Minute, "999", 1, model.LanguageEN), // in the future
		sale(0, "888", 1, model.LanguageEN),            // exactly now
	}

	ov := Compute(sales, now)

	tests := []struct {
		name  string
		got   Volume
		value string
		units int
		sales int
	}{
		{"24h", ov.Volume24h, "200", 3, 2},
		{"7d", ov.Volume7d, "240", 5, 4},
		{"30d", ov.Volume30d, "260", 6, 5},
		{"total", ov.TotalVolume, "280", 10, 6},
	}
	for _, tt := range tests {
		if !tt.got.Value.Equal(decimal.RequireFromString(tt.value)) {
			t.Errorf("%s value: expected %s, got %s", tt.name, tt.value, tt.got.Value)
		}
		if tt.got.Units != tt.units || tt.got.Sales != tt.sales {
			t.Errorf("%s counts: expected %d units / %d sales, got %d / %d", tt.name, tt.units, tt.sales, tt.got.Units, tt.got.Sales)
		}
	}
}

func TestCompute_Languages(t *testing.T) {
	sales := []model.Sale{
		sale(time.Hour, "100", 3, model.LanguageEN),
		sale(2*time.Hour, "50", 1, "en"),
		sale(3*time.Hour, "10", 1, model.LanguageJP),
		sale(4*time.Hour, "40", 1, ""),
	}
	ov := Compute(sales, now)

	en, ok := ov.Language(model.LanguageEN)
	if !ok {
		t.Fatal("Expected EN stats")
	}
	if en.SalesCount != 3 {
		t.Errorf("Expected 3 EN sales (blank defaults to EN), got %d", en.SalesCount)
	}
	// simple mean of sale prices, not value-weighted
	if !en.AveragePrice.Equal(decimal.RequireFromString("190").Div(decimal.NewFromInt(3))) {
		t.Errorf("Expected EN average 63.33.., got %s", en.AveragePrice)
	}
	if ov.Languages[0].Language != model.LanguageEN || ov.Languages[1].Language != model.LanguageJP {
		t.Errorf("Expected languages ordered by sales count, got %+v", ov.Languages)
	}
	if _, ok := ov.Language(model.LanguageFR); ok {
		t.Error("Expected no FR stats")
	}
}

func TestCompute_Empty(t *testing.T) {
	ov := Compute(nil, now)
	if !ov.TotalVolume.Value.IsZero() || ov.TotalVolume.Sales != 0 {
		t.Errorf("Expected zero totals, got %+v", ov.TotalVolume)
	}
	if ov.Languages == nil || len(ov.Languages) != 0 {
		t.Errorf("Expected an empty, non-nil language list, got %#v", ov.Languages)
	}
}
