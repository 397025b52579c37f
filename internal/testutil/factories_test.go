package testutil

import (
	"testing"
	"time"
)

func TestNewFactory_SeedIsReproducible(t *testing.T) {
	a := NewFactory(12345).Card(1)
	b := NewFactory(12345).Card(1)
	if a != b {
		t.Errorf("factories with same seed should generate same cards, got %+v and %+v", a, b)
	}
	if a.ID != "card-1" {
		t.Errorf("Expected id card-1, got %s", a.ID)
	}
}

func TestFactory_Price(t *testing.T) {
	f := NewFactory(7)
	for i := 0; i < 100; i++ {
		p := f.Price(10, 5)
		if p.Exponent() < -2 {
			t.Fatalf("price should have cent precision, got %s", p)
		}
		if p.IntPart() < 10 || p.IntPart() >= 15 {
			t.Fatalf("price out of range: %s", p)
		}
	}
}

func TestFactory_SalesAreOrdered(t *testing.T) {
	f := NewFactory(99)
	card := f.Card(0)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sales := f.Sales(card, start, 50, 6*time.Hour, 200)
	if len(sales) != 50 {
		t.Fatalf("Expected 50 sales, got %d", len(sales))
	}
	for i, s := range sales {
		if s.CardID != card.ID || !s.Price.IsPositive() || s.Quantity < 1 {
			t.Fatalf("sale %d is malformed: %+v", i, s)
		}
		if i > 0 && s.Timestamp.Before(sales[i-1].Timestamp) {
			t.Fatalf("sale %d is out of order", i)
		}
	}
}

func TestFactory_Market(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	m := NewFactory(3).Market(5, 20, start, end)

	if len(m.Cards) != 5 || len(m.Sales) != 100 || len(m.Listings) != 3 {
		t.Fatalf("unexpected market size: %d cards, %d sales, %d listings", len(m.Cards), len(m.Sales), len(m.Listings))
	}
	for i, s := range m.Sales {
		if s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
			t.Errorf("sale %d outside [start, end): %s", i, s.Timestamp)
		}
		if i > 0 && s.Timestamp.Before(m.Sales[i-1].Timestamp) {
			t.Errorf("sale %d out of order", i)
		}
	}
	for _, l := range m.Listings {
		if !l.Price.IsPositive() || l.Type == "" {
			t.Errorf("malformed listing: %+v", l)
		}
	}
}
