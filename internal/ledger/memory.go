package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/guarzo/gradearb/internal/model"
)

// Dataset is the on-disk form of a MemoryStore.
type Dataset struct {
	Cards    []model.Card    `json:"cards"`
	Sales    []model.Sale    `json:"sales"`
	Listings []model.Listing `json:"listings"`
}

// MemoryStore is a Source held in memory, optionally backed by a JSON file.
// It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	cards    map[string]model.Card
	order    []string
	sales    map[string][]model.Sale // per card, ascending by timestamp
	listings map[string]model.Listing
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:    make(map[string]model.Card),
		sales:    make(map[string][]model.Sale),
		listings: make(map[string]model.Listing),
	}
}

// LoadFile reads a Dataset written by SaveFile.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable("ledger file", err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w", path, err)
	}

	m := NewMemoryStore()
	m.Load(ds)
	return m, nil
}

// Load adds every card, sale and listing of ds.
func (m *MemoryStore) Load(ds Dataset) {
	for _, c := range ds.Cards {
		m.PutCard(c)
	}
	m.AddSales(ds.Sales...)
	for _, l := range ds.Listings {
		m.PutListing(l)
	}
}

// Dataset returns a copy of everything in the store: cards in insertion
// order, sales per card in time order.
func (m *MemoryStore) Dataset() Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds := Dataset{
		Cards:    make([]model.Card, 0, len(m.order)),
		Listings: make([]model.Listing, 0, len(m.listings)),
	}
	for _, id := range m.order {
		ds.Cards = append(ds.Cards, m.cards[id])
		if l, ok := m.listings[id]; ok {
			ds.Listings = append(ds.Listings, l)
		}
	}
	for _, id := range m.saleKeys() {
		ds.Sales = append(ds.Sales, m.sales[id]...)
	}
	return ds
}

// SaveFile writes the store atomically via a temp file and rename.
func (m *MemoryStore) SaveFile(path string) error {
	ds := m.Dataset()
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return os.Rename(tmp, path)
}

// PutCard adds or replaces a catalog card.
func (m *MemoryStore) PutCard(c model.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[c.ID]; !ok {
		m.order = append(m.order, c.ID)
	}
	m.cards[c.ID] = c
}

// AddSales appends sales, keeping each card's history ordered.
func (m *MemoryStore) AddSales(sales ...model.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	touched := make(map[string]bool)
	for _, s := range sales {
		m.sales[s.CardID] = append(m.sales[s.CardID], s)
		touched[s.CardID] = true
	}
	for id := range touched {
		model.SortSalesByTime(m.sales[id])
	}
}

// PutListing sets the card's active listing.
func (m *MemoryStore) PutListing(l model.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.CardID] = l
}

// RemoveListing expires the card's active listing.
func (m *MemoryStore) RemoveListing(cardID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, cardID)
}

// GetSales returns the matching sales in [start, end), oldest first. A zero end is unbounded.
func (m *MemoryStore) GetSales(ctx context.Context, sel Selector, start, end time.Time) ([]model.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Sale
	switch {
	case sel.CardID != "":
		for _, s := range m.sales[sel.CardID] {
			if inRange(s, start, end) {
				out = append(out, s)
			}
		}
		return nonEmpty(out)
	default:
		for _, id := range m.saleKeys() {
			if sel.SetName != "" && m.cards[id].SetName != sel.SetName {
				continue
			}
			for _, s := range m.sales[id] {
				if inRange(s, start, end) {
					out = append(out, s)
				}
			}
		}
	}

	// merging per-card histories needs a global stable order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return nonEmpty(out)
}

// saleKeys returns every card id with sales, sorted. Callers hold m.mu.
func (m *MemoryStore) saleKeys() []string {
	keys := make([]string, 0, len(m.sales))
	for id := range m.sales {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

func nonEmpty(sales []model.Sale) ([]model.Sale, error) {
	if len(sales) == 0 {
		return nil, ErrNoData
	}
	return sales, nil
}

func (m *MemoryStore) GetCard(ctx context.Context, id string) (model.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cards[id]
	if !ok {
		return model.Card{}, &NotFoundError{Kind: "card", ID: id}
	}
	return c, nil
}

func (m *MemoryStore) GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[cardID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryStore) ListCards(ctx context.Context) ([]model.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Card, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.cards[id])
	}
	return out, nil
}
