package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

// Factory generates reproducible cards, sales and listings for tests.
type Factory struct {
	rand *rand.Rand
}

// NewFactory creates a factory with a seeded generator. A zero seed uses
// the clock.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{rand: rand.New(rand.NewSource(seed))}
}

var (
	cardNames = []string{"Charizard", "Pikachu", "Blastoise", "Monkey D. Luffy", "Dark Magician", "Mewtwo"}
	setNames  = []string{"Base Set", "Jungle", "Romance Dawn", "Legend of Blue Eyes"}
	games     = []model.Game{model.GamePokemon, model.GamePokemon, model.GameOnePiece, model.GameYuGiOh}
	languages = []model.Language{model.LanguageEN, model.LanguageFR, model.LanguageJP}
	grades    = []model.Grade{model.GradeRaw, model.GradePSA8, model.GradePSA9, model.GradePSA10}
)

// Card returns a catalog card with id "card-<n>".
func (f *Factory) Card(n int) model.Card {
	return model.Card{
		ID:       fmt.Sprintf("card-%d", n),
		Name:     cardNames[f.rand.Intn(len(cardNames))],
		Game:     games[f.rand.Intn(len(games))],
		SetName:  setNames[f.rand.Intn(len(setNames))],
		Number:   fmt.Sprintf("%03d", f.rand.Intn(300)+1),
		Language: languages[f.rand.Intn(len(languages))],
		Grade:    grades[f.rand.Intn(len(grades))],
	}
}

// Price returns a cent-precision price in [lo, lo+spread).
func (f *Factory) Price(lo, spread int) decimal.Decimal {
	cents := int64(lo*100 + f.rand.Intn(spread*100))
	return decimal.New(cents, -2)
}

// Sales returns n ascending sales for card starting at start, spaced by a
// random gap of up to maxGap. Prices wander around base.
func (f *Factory) Sales(card model.Card, start time.Time, n int, maxGap time.Duration, base int) []model.Sale {
	sales := make([]model.Sale, 0, n)
	ts := start
	for i := 0; i < n; i++ {
		if maxGap > 0 {
			ts = ts.Add(time.Duration(f.rand.Int63n(int64(maxGap))))
		}
		sales = append(sales, model.Sale{
			CardID:    card.ID,
			ItemID:    fmt.Sprintf("%s-sale-%d", card.ID, i),
			Timestamp: ts,
			Price:     f.Price(base*9/10, base/5+1),
			Quantity:  1 + f.rand.Intn(2),
			Language:  card.Language,
			Grade:     card.Grade,
		})
	}
	return sales
}

// Listing returns an active Buy Now listing at price.
func (f *Factory) Listing(card model.Card, price decimal.Decimal, postedAt time.Time) model.Listing {
	return model.Listing{
		CardID:    card.ID,
		ItemID:    fmt.Sprintf("%s-listing-%d", card.ID, f.rand.Intn(1_000_000)),
		Title:     fmt.Sprintf("%s %s #%s %s", card.Name, card.SetName, card.Number, card.Grade),
		Price:     price,
		Grade:     card.Grade,
		Type:      model.ListingBuyNow,
		SourceURL: fmt.Sprintf("https://marketplace.test.local/item/%s", card.ID),
		PostedAt:  postedAt,
	}
}

// Market is a generated catalog with sales and listings.
type Market struct {
	Cards    []model.Card
	Sales    []model.Sale
	Listings []model.Listing
}

// Market generates nCards cards with salesPerCard sales each spread over
// [start, end); every other card gets a listing below its base price.
func (f *Factory) Market(nCards, salesPerCard int, start, end time.Time) Market {
	var m Market
	span := end.Sub(start)
	for i := 0; i < nCards; i++ {
		card := f.Card(i)
		base := 50 + f.rand.Intn(500)
		gap := time.Duration(0)
		if salesPerCard > 0 {
			gap = span / time.Duration(salesPerCard)
		}
		m.Cards = append(m.Cards, card)
		m.Sales = append(m.Sales, f.Sales(card, start, salesPerCard, gap, base)...)
		if i%2 == 0 {
			m.Listings = append(m.Listings, f.Listing(card, f.Price(base/2, base/4+1), end.Add(-time.Hour)))
		}
	}
	model.SortSalesByTime(m.Sales)
	return m
}
