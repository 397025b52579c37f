package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/scoring"
)

// All is the wildcard accepted by the exact-match predicates.
const All = "all"

// DefaultMaxPrice is the top of the price slider. A max price at or above
// the configured maximum filters nothing.
var DefaultMaxPrice = decimal.NewFromInt(10000)

type SortOrder string

const (
	SortNone      SortOrder = "none"
	SortMargin    SortOrder = "margin"
	SortNetProfit SortOrder = "net_profit"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// ParseSortOrder accepts the sort names above; empty means input order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "", SortNone:
		return SortNone, nil
	case SortMargin, SortNetProfit, SortPriceAsc, SortPriceDesc:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Predicates is a conjunction of optional conditions. The zero value
// matches everything and keeps input order.
type Predicates struct {
	Game        string
	Grade       string
	Language    string
	ListingType string
	Search      string          // case-insensitive substring of the card name
	MinROI      decimal.Decimal // inclusive lower bound on profit_margin × 100
	MaxPrice    decimal.Decimal // inclusive upper bound on listing_price
	Sort        SortOrder
	Limit       int
}

// Evaluator applies predicates against a configured price ceiling.
type Evaluator struct {
	maxPrice decimal.Decimal
}

// NewEvaluator creates an Evaluator treating maxPrice as the no-op ceiling.
// A non-positive maxPrice uses DefaultMaxPrice.
func NewEvaluator(maxPrice decimal.Decimal) *Evaluator {
	if !maxPrice.IsPositive() {
		maxPrice = DefaultMaxPrice
	}
	return &Evaluator{maxPrice: maxPrice}
}

// Apply filters with the default price ceiling.
func Apply(opps []scoring.Opportunity, p Predicates) []scoring.Opportunity {
	return NewEvaluator(DefaultMaxPrice).Apply(opps, p)
}

// Apply returns the opportunities matching every predicate. The input is
// never modified; matches keep their relative order unless p.Sort asks
// for a stable reordering.
func (e *Evaluator) Apply(opps []scoring.Opportunity, p Predicates) []scoring.Opportunity {
	m := e.compile(p)

	out := make([]scoring.Opportunity, 0, len(opps))
	for _, o := range opps {
		if m.match(o) {
			out = append(out, o)
		}
	}

	sortOpportunities(out, p.Sort)

	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

type matcher struct {
	game        string
	grade       string
	language    model.Language
	listingType string
	search      string
	minROI      decimal.NullDecimal
	maxPrice    decimal.NullDecimal
}

func (e *Evaluator) compile(p Predicates) matcher {
	var m matcher
	if !isWildcard(p.Game) {
		m.game = strings.TrimSpace(p.Game)
	}
	if !isWildcard(p.Grade) {
		m.grade = strings.TrimSpace(p.Grade)
	}
	if !isWildcard(p.Language) {
		m.language = model.NormalizeLanguage(p.Language)
	}
	if !isWildcard(p.ListingType) {
		m.listingType = strings.TrimSpace(p.ListingType)
	}
	m.search = strings.ToLower(strings.TrimSpace(p.Search))
	if !p.MinROI.IsZero() {
		m.minROI = decimal.NewNullDecimal(p.MinROI)
	}
	if p.MaxPrice.IsPositive() && p.MaxPrice.LessThan(e.maxPrice) {
		m.maxPrice = decimal.NewNullDecimal(p.MaxPrice)
	}
	return m
}

func (m matcher) match(o scoring.Opportunity) bool {
	if m.game != "" && string(o.Card.Game) != m.game {
		return false
	}
	if m.grade != "" && string(opportunityGrade(o)) != m.grade {
		return false
	}
	if m.language != "" && model.NormalizeLanguage(string(o.Card.Language)) != m.language {
		return false
	}
	if m.listingType != "" && string(o.Listing.Type) != m.listingType {
		return false
	}
	if m.search != "" && !strings.Contains(strings.ToLower(o.Card.Name), m.search) {
		return false
	}
	if m.minROI.Valid && o.ROIPercent().LessThan(m.minROI.Decimal) {
		return false
	}
	if m.maxPrice.Valid && o.ListingPrice.GreaterThan(m.maxPrice.Decimal) {
		return false
	}
	return true
}

// opportunityGrade prefers the listing's grade over the catalog default.
func opportunityGrade(o scoring.Opportunity) model.Grade {
	if o.Listing.Grade != "" {
		return o.Listing.Grade
	}
	return o.Card.Grade
}

func isWildcard(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, All)
}

func sortOpportunities(opps []scoring.Opportunity, order SortOrder) {
	var less func(a, b scoring.Opportunity) bool
	switch order {
	case SortMargin:
		less = func(a, b scoring.Opportunity) bool { return a.ProfitMargin.GreaterThan(b.ProfitMargin) }
	case SortNetProfit:
		less = func(a, b scoring.Opportunity) bool { return a.EstimatedNetProfit.GreaterThan(b.EstimatedNetProfit) }
	case SortPriceAsc:
		less = func(a, b scoring.Opportunity) bool { return a.ListingPrice.LessThan(b.ListingPrice) }
	case SortPriceDesc:
		less = func(a, b scoring.Opportunity) bool { return a.ListingPrice.GreaterThan(b.ListingPrice) }
	default:
		return
	}
	sort.SliceStable(opps, func(i, j int) bool { return less(opps[i], opps[j]) })
}

// SortByMargin orders opportunities by profit margin descending, in place.
func SortByMargin(opps []scoring.Opportunity) {
	sortOpportunities(opps, SortMargin)
}
