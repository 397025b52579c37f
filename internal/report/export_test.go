package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/alert"
	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

func readAll(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	return records
}

func TestWriteOpportunities(t *testing.T) {
	o := scoring.Score(decimal.NewNullDecimal(decimal.NewFromInt(450)), decimal.NewFromInt(320), decimal.Zero)
	o.Card = model.Card{ID: "a", Name: "=HYPERLINK(\"x\")", Game: model.GamePokemon, Grade: model.GradePSA10}
	o.Listing = model.Listing{SourceURL: "https://example.com/a", Type: model.ListingBuyNow}
	o.SalesInWindow = 3

	var buf bytes.Buffer
	if err := WriteOpportunities(&buf, []scoring.Opportunity{*o}); err != nil {
		t.Fatalf("WriteOpportunities: %v", err)
	}
	records := readAll(t, &buf)
	if len(records) != 2 {
		t.Fatalf("Expected header and one row, got %d records", len(records))
	}

	row := records[1]
	checks := map[int]string{
		1:  "'=HYPERLINK(\"x\")",
		4:  "PSA 10",
		6:  "320.00",
		7:  "450.00",
		10: "130.00",
		11: "40.63",
		13: "3",
		14: "Buy Now",
	}
	for col, want := range checks {
		if row[col] != want {
			t.Errorf("column %s: got %q, want %q", records[0][col], row[col], want)
		}
	}
}

func TestWriteHistory(t *testing.T) {
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	h := &engine.History{
		Selector: "card:a",
		Width:    bucket.Daily,
		Buckets: []bucket.PriceBucket{
			{Start: day, Open: decimal.NewFromInt(300), High: decimal.NewFromInt(320), Low: decimal.NewFromInt(300), Close: decimal.NewFromInt(320), Average: decimal.NewFromInt(310), Median: decimal.NewFromInt(310), Volume: 2, Sales: 2},
		},
		Summary: engine.HistorySummary{AveragePrice: decimal.NewNullDecimal(decimal.NewFromInt(310)), TotalSales: 2},
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, h); err != nil {
		t.Fatalf("WriteHistory: %v", err)
	}
	records := readAll(t, &buf)
	if records[1][0] != "2026-04-01" || records[1][4] != "320.00" || records[1][7] != "2" {
		t.Errorf("Unexpected bucket row %v", records[1])
	}

	buf.Reset()
	if err := WriteSummary(&buf, h); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	summary := map[string]string{}
	for _, r := range readAll(t, &buf)[1:] {
		summary[r[0]] = r[1]
	}
	if summary["Average Price"] != "310.00" || summary["Current Floor"] != "" || summary["Total Sales"] != "2" {
		t.Errorf("Unexpected summary %v", summary)
	}
}

func TestWriteMovers_NegativeChangeStaysNumeric(t *testing.T) {
	movers := []trend.Mover{{
		Change: trend.Change{
			CardID:         "b",
			ReferenceClose: decimal.NewFromInt(100),
			LatestClose:    decimal.NewFromInt(90),
			ChangePct:      decimal.RequireFromString("-0.1"),
			Direction:      trend.DirectionDown,
			Volume:         4,
		},
		Window: 7 * 24 * time.Hour,
		Rank:   1,
	}}

	var buf bytes.Buffer
	if err := WriteMovers(&buf, movers); err != nil {
		t.Fatalf("WriteMovers: %v", err)
	}
	row := readAll(t, &buf)[1]
	if row[2] != "7d" || row[5] != "-10.00" || row[6] != "down" {
		t.Errorf("Unexpected mover row %v", row)
	}
}

func TestWriteTrending(t *testing.T) {
	cards := []trend.TrendingCard{{
		CardID:          "c",
		RecentVolume:    6,
		RecentAverage:   decimal.NewFromInt(6),
		BaselineAverage: decimal.NewFromInt(2),
		VolumeRatio:     decimal.NewFromInt(3),
		Window:          24 * time.Hour,
		Rank:            1,
	}}

	var buf bytes.Buffer
	if err := WriteTrending(&buf, cards); err != nil {
		t.Fatalf("WriteTrending: %v", err)
	}
	row := readAll(t, &buf)[1]
	if row[2] != "24h" || row[6] != "3.00" || row[7] != "" {
		t.Errorf("Unexpected trending row %v", row)
	}
}

func TestWriteAlerts(t *testing.T) {
	alerts := []alert.Alert{{
		Type:      alert.PriceMove,
		Severity:  alert.SeverityHigh,
		CardID:    "a",
		Message:   "-35% over 24h",
		Timestamp: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := WriteAlerts(&buf, alerts); err != nil {
		t.Fatalf("WriteAlerts: %v", err)
	}
	row := readAll(t, &buf)[1]
	if row[0] != "PRICE_MOVE" || row[2] != "2026-04-10T12:00:00Z" || row[5] != "'-35% over 24h" {
		t.Errorf("Unexpected alert row %v", row)
	}
}
