package ledger

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/guarzo/gradearb/internal/model"
)

const sourceHTTP = "backend"

// HTTPConfig is transport configuration for the backend API. It is fixed
// at construction; nothing reads a global base URL.
type HTTPConfig struct {
	BaseURL    string
	RatePerSec float64 // 0 disables pacing
	Burst      int
	Timeout    time.Duration
	PageSize   int
	HTTPClient *http.Client
}

// HTTPClient is a Source backed by the backend's REST API.
type HTTPClient struct {
	base     *url.URL
	client   *http.Client
	limiter  *rate.Limiter
	pageSize int
}

// NewHTTPClient validates cfg and creates a client for the backend API.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return &HTTPClient{base: base, client: client, limiter: limiter, pageSize: pageSize}, nil
}

// --- wire types (the backend's JSON shapes) ---

// wireID accepts both numeric and string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = wireID(n.String())
	return nil
}

type wireCard struct {
	ID             wireID `json:"id"`
	NormalizedName string `json:"normalized_name"`
	RawName        string `json:"raw_name"`
	Game           string `json:"game"`
	CardSet        string `json:"card_set"`
	CardNumber     string `json:"card_number"`
	Language       string `json:"language"`
	Grade          string `json:"grade"`
	ImageURL       string `json:"image_url"`
}

func (w wireCard) toModel() model.Card {
	name := w.NormalizedName
	if name == "" {
		name = w.RawName
	}
	return model.Card{
		ID:       string(w.ID),
		Name:     name,
		Game:     model.Game(w.Game),
		SetName:  w.CardSet,
		Number:   w.CardNumber,
		Language: model.NormalizeLanguage(w.Language),
		Grade:    model.Grade(w.Grade),
		ImageURL: w.ImageURL,
	}
}

type wireSale struct {
	CardID       wireID          `json:"card_id"`
	EbayItemID   string          `json:"ebay_item_id"`
	Price        decimal.Decimal `json:"price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	SoldDate     time.Time       `json:"sold_date"`
	Quantity     int             `json:"quantity"`
	Language     string          `json:"language"`
	PSAGrade     string          `json:"psa_grade"`
}

func (w wireSale) toModel() model.Sale {
	return model.Sale{
		CardID:       string(w.CardID),
		ItemID:       w.EbayItemID,
		Timestamp:    w.SoldDate.UTC(),
		Price:        w.Price,
		ShippingCost: w.ShippingCost,
		Quantity:     w.Quantity,
		Language:     model.NormalizeLanguage(w.Language),
		Grade:        model.Grade(w.PSAGrade),
	}
}

type wireListing struct {
	CardID       wireID          `json:"card_id"`
	EbayItemID   string          `json:"ebay_item_id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	ListingURL   string          `json:"listing_url"`
	PSAGrade     string          `json:"psa_grade"`
	ListingType  string          `json:"listing_type"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (w wireListing) toModel() model.Listing {
	return model.Listing{
		CardID:       string(w.CardID),
		ItemID:       w.EbayItemID,
		Title:        w.Title,
		Price:        w.Price,
		ShippingCost: w.ShippingCost,
		Grade:        model.Grade(w.PSAGrade),
		Type:         model.ListingType(w.ListingType),
		SourceURL:    w.ListingURL,
		PostedAt:     w.CreatedAt.UTC(),
	}
}

// --- Source ---

// GetSales pages through the backend sales feed and keeps sales in [start, end).
func (h *HTTPClient) GetSales(ctx context.Context, sel Selector, start, end time.Time) ([]model.Sale, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	if !end.IsZero() {
		q.Set("end", end.UTC().Format(time.RFC3339))
	}

	path := "/api/sales"
	switch {
	case sel.CardID != "":
		path = "/api/cards/" + url.PathEscape(sel.CardID) + "/sales"
	case sel.SetName != "":
		q.Set("set", sel.SetName)
	}

	var wire []wireSale
	if err := h.getPaged(ctx, path, q, func(body []byte) (int, error) {
		var page []wireSale
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		wire = append(wire, page...)
		return len(page), nil
	}); err != nil {
		if IsNotFound(err) {
			return nil, ErrNoData
		}
		return nil, err
	}

	// the backend serves newest first; walking it backwards keeps equal
	// timestamps in ingestion order through the stable sort
	sales := make([]model.Sale, 0, len(wire))
	for i := len(wire) - 1; i >= 0; i-- {
		s := wire[i].toModel()
		if inRange(s, start, end) {
			sales = append(sales, s)
		}
	}
	model.SortSalesByTime(sales)
	return nonEmpty(sales)
}

func (h *HTTPClient) GetCard(ctx context.Context, id string) (model.Card, error) {
	body, err := h.get(ctx, "/api/cards/"+url.PathEscape(id), nil)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return model.Card{}, &NotFoundError{Kind: "card", ID: id}
		}
		return model.Card{}, err
	}
	var w wireCard
	if err := json.Unmarshal(body, &w); err != nil {
		return model.Card{}, fmt.Errorf("decode card %s: %w", id, err)
	}
	return w.toModel(), nil
}

func (h *HTTPClient) GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error) {
	q := url.Values{}
	q.Set("active_only", "true")
	q.Set("card_id", cardID)

	body, err := h.get(ctx, "/api/listings", q)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var wire []wireListing
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode listings for %s: %w", cardID, err)
	}

	// cheapest active ask wins
	var best *model.Listing
	for _, w := range wire {
		if !w.IsActive || string(w.CardID) != cardID {
			continue
		}
		l := w.toModel()
		if best == nil || l.Price.LessThan(best.Price) {
			best = &l
		}
	}
	return best, nil
}

func (h *HTTPClient) ListCards(ctx context.Context) ([]model.Card, error) {
	var cards []model.Card
	err := h.getPaged(ctx, "/api/cards", url.Values{}, func(body []byte) (int, error) {
		var page []wireCard
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, w := range page {
			cards = append(cards, w.toModel())
		}
		return len(page), nil
	})
	return cards, err
}

// getPaged walks skip/limit pages until a short page.
func (h *HTTPClient) getPaged(ctx context.Context, path string, q url.Values, page func([]byte) (int, error)) error {
	for skip := 0; ; skip += h.pageSize {
		q.Set("skip", strconv.Itoa(skip))
		q.Set("limit", strconv.Itoa(h.pageSize))

		body, err := h.get(ctx, path, q)
		if err != nil {
			return err
		}
		n, err := page(body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if n < h.pageSize {
			return nil
		}
	}
}

func (h *HTTPClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := *h.base
	u.Path = h.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable(sourceHTTP, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Kind: "resource", ID: path}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, unavailable(sourceHTTP, fmt.Errorf("HTTP %d from %s", resp.StatusCode, path))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}

	reader, err := decodedBody(resp)
	if err != nil {
		return nil, unavailable(sourceHTTP, fmt.Errorf("failed to create reader: %w", err))
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, unavailable(sourceHTTP, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

func decodedBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
