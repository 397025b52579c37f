package scoring

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestScore_Example(t *testing.T) {
	opp := Score(decimal.NewNullDecimal(d("450.00")), d("320.00"), decimal.Zero)
	if opp == nil {
		t.Fatal("Expected an opportunity")
	}

	if !opp.ProfitMargin.Equal(d("0.40625")) {
		t.Errorf("Expected margin 0.40625, got %s", opp.ProfitMargin)
	}
	if !opp.EstimatedNetProfit.Equal(d("130")) {
		t.Errorf("Expected net profit 130.00, got %s", opp.EstimatedNetProfit)
	}
	if !opp.ROIPercent().Equal(d("40.625")) {
		t.Errorf("Expected ROI 40.625%%, got %s", opp.ROIPercent())
	}
	if !opp.Profitable() {
		t.Error("Expected a profitable opportunity")
	}
}

func TestScore_FeeRate(t *testing.T) {
	// Expected: gross 130, fees 450*0.13 = 58.5, net 71.5
	opp := Score(decimal.NewNullDecimal(d("450")), d("320"), d("0.13"))
	if opp == nil {
		t.Fatal("Expected an opportunity")
	}
	if !opp.Fees.Equal(d("58.5")) {
		t.Errorf("Expected fees 58.50, got %s", opp.Fees)
	}
	if !opp.EstimatedNetProfit.Equal(d("71.5")) {
		t.Errorf("Expected net profit 71.50, got %s", opp.EstimatedNetProfit)
	}
	// margin is independent of the fee model
	if !opp.ProfitMargin.Equal(d("0.40625")) {
		t.Errorf("Expected margin 0.40625, got %s", opp.ProfitMargin)
	}
}

func TestScore_Absent(t *testing.T) {
	tests := []struct {
		name    string
		floor   decimal.NullDecimal
		listing decimal.Decimal
	}{
		{"zero listing price", decimal.NewNullDecimal(d("100")), decimal.Zero},
		{"negative listing price", decimal.NewNullDecimal(d("100")), d("-5")},
		{"absent floor", decimal.NullDecimal{}, d("50")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if opp := Score(tt.floor, tt.listing, decimal.Zero); opp != nil {
				t.Errorf("Expected nil, got %+v", opp)
			}
		})
	}
}

func TestScore_NegativeMarginIsKept(t *testing.T) {
	opp := Score(decimal.NewNullDecimal(d("80")), d("100"), decimal.Zero)
	if opp == nil {
		t.Fatal("Expected a non-opportunity to still be scored")
	}
	if opp.Profitable() {
		t.Error("Expected negative margin")
	}
	if !opp.ProfitMargin.Equal(d("-0.2")) {
		t.Errorf("Expected margin -0.2, got %s", opp.ProfitMargin)
	}
}

func TestScorer_ScoreListing(t *testing.T) {
	card := model.Card{ID: "c1", Name: "Charizard"}
	listing := model.Listing{CardID: "c1", Price: d("90"), ShippingCost: d("10")}
	floor := decimal.NewNullDecimal(d("150"))

	plain := NewScorer(Config{}).ScoreListing(card, listing, floor, 7)
	if plain == nil || !plain.ListingPrice.Equal(d("90")) {
		t.Fatalf("Expected listing price 90 without shipping, got %+v", plain)
	}
	if plain.Card.ID != "c1" || plain.SalesInWindow != 7 {
		t.Errorf("Expected card and sales count to be attached, got %+v", plain)
	}

	shipped := NewScorer(Config{IncludeShipping: true}).ScoreListing(card, listing, floor, 7)
	if shipped == nil || !shipped.ListingPrice.Equal(d("100")) {
		t.Fatalf("Expected listing price 100 with shipping, got %+v", shipped)
	}
	if !shipped.ProfitMargin.Equal(d("0.5")) {
		t.Errorf("Expected margin 0.5, got %s", shipped.ProfitMargin)
	}
	if !shipped.IsDeal(d("0.8")) {
		t.Error("Expected 100 < 0.8*150 to be a deal")
	}
	if shipped.IsDeal(d("0.6")) {
		t.Error("Expected 100 >= 0.6*150 not to be a deal")
	}
}
