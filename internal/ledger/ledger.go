package ledger

import (
	"context"
	"time"

	"github.com/guarzo/gradearb/internal/model"
)

// Selector picks the sales of one card, one set, or (zero value) the whole
// ledger.
type Selector struct {
	CardID  string
	SetName string
}

// ForCard selects the sales of one card.
func ForCard(id string) Selector { return Selector{CardID: id} }

// ForSet selects the sales of every card in a set.
func ForSet(name string) Selector { return Selector{SetName: name} }

// All reports whether the selector covers the whole ledger.
func (s Selector) All() bool { return s.CardID == "" && s.SetName == "" }

func (s Selector) String() string {
	switch {
	case s.CardID != "":
		return "card:" + s.CardID
	case s.SetName != "":
		return "set:" + s.SetName
	default:
		return "all"
	}
}

// SaleLedger is read-only access to completed sales. Results are sorted
// ascending by timestamp and restricted to [start, end). A selector with no
// sales in range yields ErrNoData; an unreachable backend yields
// *DataSourceUnavailableError.
type SaleLedger interface {
	GetSales(ctx context.Context, sel Selector, start, end time.Time) ([]model.Sale, error)
}

// Catalog is read-only access to cards and their active listings.
type Catalog interface {
	// GetCard returns *NotFoundError for unknown ids.
	GetCard(ctx context.Context, id string) (model.Card, error)
	// GetActiveListing returns nil, nil when the card has no active listing.
	GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error)
	ListCards(ctx context.Context) ([]model.Card, error)
}

// Source is a backend serving both halves of the boundary.
type Source interface {
	SaleLedger
	Catalog
}

// inRange keeps sales in [start, end); a zero end means unbounded.
func inRange(s model.Sale, start, end time.Time) bool {
	if s.Timestamp.Before(start) {
		return false
	}
	return end.IsZero() || s.Timestamp.Before(end)
}
