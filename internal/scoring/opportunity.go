package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

// Opportunity pairs a card's floor price with an active listing.
// ProfitMargin and DiscountPct are ratios; formatting as a percentage
// belongs to the caller.
type Opportunity struct {
	Card               model.Card      `json:"card"`
	Listing            model.Listing   `json:"listing"`
	FloorPrice         decimal.Decimal `json:"floor_price"`
	ListingPrice       decimal.Decimal `json:"listing_price"`
	GrossProfit        decimal.Decimal `json:"estimated_gross_profit"`
	Fees               decimal.Decimal `json:"fees"`
	EstimatedNetProfit decimal.Decimal `json:"estimated_net_profit"`
	ProfitMargin       decimal.Decimal `json:"profit_margin"`
	DiscountPct        decimal.Decimal `json:"discount_pct"`
	SalesInWindow      int             `json:"sales_in_window"`
}

// ROIPercent is the profit margin expressed in percent, unrounded.
func (o Opportunity) ROIPercent() decimal.Decimal {
	return o.ProfitMargin.Mul(hundred)
}

// Profitable reports a positive margin.
func (o Opportunity) Profitable() bool {
	return o.ProfitMargin.IsPositive()
}

// IsDeal reports whether the listing is priced below threshold × floor.
func (o Opportunity) IsDeal(threshold decimal.Decimal) bool {
	return o.ListingPrice.LessThan(threshold.Mul(o.FloorPrice))
}

var hundred = decimal.NewFromInt(100)

// Config holds the fee model applied when scoring.
type Config struct {
	FeeRate         decimal.Decimal // fraction of the floor price lost to selling fees
	IncludeShipping bool            // add the listing's shipping cost to its price
}

// Scorer turns (floor, listing) pairs into opportunities.
type Scorer struct {
	config Config
}

// NewScorer creates a Scorer with the given fee model.
func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// Score returns nil when the floor is absent or the listing price is not
// positive. Absence is never reported as a zero-valued opportunity.
func Score(floor decimal.NullDecimal, listingPrice, feeRate decimal.Decimal) *Opportunity {
	if !floor.Valid || !listingPrice.IsPositive() {
		return nil
	}

	gross := floor.Decimal.Sub(listingPrice)
	fees := floor.Decimal.Mul(feeRate)
	opp := &Opportunity{
		FloorPrice:         floor.Decimal,
		ListingPrice:       listingPrice,
		GrossProfit:        gross,
		Fees:               fees,
		EstimatedNetProfit: gross.Sub(fees),
		ProfitMargin:       gross.Div(listingPrice),
	}
	if floor.Decimal.IsPositive() {
		opp.DiscountPct = gross.Div(floor.Decimal)
	}
	return opp
}

// ScoreListing scores a card's active listing against its floor price.
func (s *Scorer) ScoreListing(card model.Card, listing model.Listing, floor decimal.NullDecimal, salesInWindow int) *Opportunity {
	price := listing.Price
	if s.config.IncludeShipping {
		price = price.Add(listing.ShippingCost)
	}

	opp := Score(floor, price, s.config.FeeRate)
	if opp == nil {
		return nil
	}
	opp.Card = card
	opp.Listing = listing
	opp.SalesInWindow = salesInWindow
	return opp
}
