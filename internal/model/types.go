package model

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Game string

const (
	GamePokemon  Game = "Pokémon"
	GameOnePiece Game = "One Piece Card Game"
	GameYuGiOh   Game = "Yu-Gi-Oh!"
)

// Grade is the grading label attached to a sale or listing ("Raw", "PSA 10", ...).
// Values outside the constants below are tolerated (e.g. "BGS 9.5").
type Grade string

const (
	GradeRaw   Grade = "Raw"
	GradePSA8  Grade = "PSA 8"
	GradePSA9  Grade = "PSA 9"
	GradePSA10 Grade = "PSA 10"
)

type Language string

const (
	LanguageEN Language = "EN"
	LanguageFR Language = "FR"
	LanguageJP Language = "JP"
)

// NormalizeLanguage upper-cases and trims a language code, defaulting to EN.
func NormalizeLanguage(s string) Language {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return LanguageEN
	}
	return Language(s)
}

type ListingType string

const (
	ListingAuction ListingType = "Auction"
	ListingBuyNow  ListingType = "Buy Now"
)

// Card is the catalog entity. The engine never writes it.
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Game     Game     `json:"game"`
	SetName  string   `json:"set_name,omitempty"`
	Number   string   `json:"number,omitempty"`
	Language Language `json:"language"`
	Grade    Grade    `json:"grade,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Sale is an immutable completed-sale fact from the marketplace.
type Sale struct {
	CardID       string          `json:"card_id"`
	ItemID       string          `json:"item_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Price        decimal.Decimal `json:"price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Quantity     int             `json:"quantity"`
	Language     Language        `json:"language"`
	Grade        Grade           `json:"grade,omitempty"`
}

// Units returns the sale quantity, treating unset quantities as 1.
func (s Sale) Units() int {
	if s.Quantity <= 0 {
		return 1
	}
	return s.Quantity
}

// Value is price × quantity.
func (s Sale) Value() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.Units())))
}

// Listing is a currently active ask. It expires externally.
type Listing struct {
	CardID       string          `json:"card_id"`
	ItemID       string          `json:"item_id,omitempty"`
	Title        string          `json:"title,omitempty"`
	Price        decimal.Decimal `json:"listing_price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Grade        Grade           `json:"grade,omitempty"`
	Type         ListingType     `json:"listing_type,omitempty"`
	SourceURL    string          `json:"source_url"`
	PostedAt     time.Time       `json:"posted_at"`
}

// SortSalesByTime orders sales ascending by timestamp, keeping input order for ties.
func SortSalesByTime(sales []Sale) {
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].Timestamp.Before(sales[j].Timestamp)
	})
}

// Round2 rounds a monetary value to cents for display.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
