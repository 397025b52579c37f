package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

var floorNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sale(daysAgo int, price string, grade model.Grade, lang model.Language) model.Sale {
	return model.Sale{
		CardID:    "card-1",
		Timestamp: floorNow.AddDate(0, 0, -daysAgo),
		Price:     decimal.RequireFromString(price),
		Quantity:  1,
		Grade:     grade,
		Language:  lang,
	}
}

func TestFloor_DefaultIsWindowMedian(t *testing.T) {
	calc := NewFloorCalculator(DefaultFloorConfig())
	sales := []model.Sale{
		sale(3, "400", model.GradePSA10, model.LanguageEN),
		sale(2, "450", model.GradePSA10, model.LanguageEN),
		sale(1, "500", model.GradePSA10, model.LanguageEN),
	}

	floor := calc.Floor(sales, floorNow)
	if !floor.Valid {
		t.Fatal("Expected a floor price")
	}
	if !floor.Decimal.Equal(decimal.NewFromInt(450)) {
		t.Errorf("Expected floor 450, got %s", floor.Decimal)
	}
}

func TestFloor_AbsentWithoutEnoughSales(t *testing.T) {
	calc := NewFloorCalculator(DefaultFloorConfig())
	if floor := calc.Floor(nil, floorNow); floor.Valid {
		t.Errorf("Expected absent floor for no sales, got %s", floor.Decimal)
	}

	strict := NewFloorCalculator(FloorConfig{MinSales: 5})
	sales := []model.Sale{
		sale(1, "10", "", ""),
		sale(2, "11", "", ""),
	}
	if floor := strict.Floor(sales, floorNow); floor.Valid {
		t.Errorf("Expected absent floor below MinSales, got %s", floor.Decimal)
	}
}

func TestFloor_MaxSalesUsesMostRecent(t *testing.T) {
	calc := NewFloorCalculator(FloorConfig{MinSales: 1, MaxSales: 2})
	sales := []model.Sale{
		sale(30, "10", "", ""),
		sale(20, "10", "", ""),
		sale(2, "100", "", ""),
		sale(1, "120", "", ""),
	}

	floor := calc.Floor(sales, floorNow)
	if !floor.Valid || !floor.Decimal.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected floor 110 from the two most recent sales, got %v", floor)
	}
}

func TestFloor_RemovesOutliers(t *testing.T) {
	calc := NewFloorCalculator(FloorConfig{MinSales: 1, RemoveOutliers: true})
	sales := []model.Sale{
		sale(6, "100", "", ""),
		sale(5, "102", "", ""),
		sale(4, "98", "", ""),
		sale(3, "101", "", ""),
		sale(2, "99", "", ""),
		sale(1, "5000", "", ""),
	}

	floor := calc.Floor(sales, floorNow)
	if !floor.Valid || !floor.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected floor 100 after dropping the outlier, got %v", floor)
	}
}

func TestFloor_WeightedFavoursRecentSales(t *testing.T) {
	calc := NewFloorCalculator(FloorConfig{MinSales: 1, Method: FloorWeighted})
	sales := []model.Sale{
		sale(60, "50", "", ""),
		sale(59, "55", "", ""),
		sale(0, "200", "", ""),
	}

	floor := calc.Floor(sales, floorNow)
	if !floor.Valid {
		t.Fatal("Expected a floor price")
	}
	// plain median would be 55; today's sale carries most of the weight
	if !floor.Decimal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected weighted floor 200, got %s", floor.Decimal)
	}
}

func TestFilterSales(t *testing.T) {
	sales := []model.Sale{
		sale(1, "10", model.GradePSA10, model.LanguageEN),
		sale(1, "20", model.GradePSA9, model.LanguageEN),
		sale(1, "30", model.GradePSA10, model.LanguageJP),
	}

	if got := FilterSales(sales, "", ""); len(got) != 3 {
		t.Errorf("Expected no-op filter, got %d sales", len(got))
	}
	if got := FilterSales(sales, model.GradePSA10, ""); len(got) != 2 {
		t.Errorf("Expected 2 PSA 10 sales, got %d", len(got))
	}
	got := FilterSales(sales, model.GradePSA10, "jp")
	if len(got) != 1 || !got[0].Price.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected the JP PSA 10 sale, got %+v", got)
	}
}
