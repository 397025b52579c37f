package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/model"
)

// Schema is the table layout the Postgres ledger reads. Ingestion owns the
// writes; it is exposed so the migrate command and tests can create it.
const Schema = `
CREATE TABLE IF NOT EXISTS cards (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	game        TEXT NOT NULL DEFAULT '',
	set_name    TEXT NOT NULL DEFAULT '',
	number      TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT 'EN',
	grade       TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sales (
	id             BIGSERIAL PRIMARY KEY,
	card_id        TEXT NOT NULL REFERENCES cards(id),
	item_id        TEXT NOT NULL DEFAULT '',
	sold_at        TIMESTAMPTZ NOT NULL,
	price          NUMERIC(12,2) NOT NULL CHECK (price > 0),
	shipping_cost  NUMERIC(12,2) NOT NULL DEFAULT 0,
	quantity       INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
	language       TEXT NOT NULL DEFAULT 'EN',
	grade          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sales_card_sold_at ON sales (card_id, sold_at);

CREATE TABLE IF NOT EXISTS listings (
	id             BIGSERIAL PRIMARY KEY,
	card_id        TEXT NOT NULL REFERENCES cards(id),
	item_id        TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL DEFAULT '',
	price          NUMERIC(12,2) NOT NULL,
	shipping_cost  NUMERIC(12,2) NOT NULL DEFAULT 0,
	grade          TEXT NOT NULL DEFAULT '',
	listing_type   TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT '',
	posted_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_active      BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS listings_active_card ON listings (card_id) WHERE is_active;
`

const sourcePostgres = "postgres"

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable(sourcePostgres, fmt.Errorf("create pool: %w", err))
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, unavailable(sourcePostgres, fmt.Errorf("ping: %w", err))
	}

	return p, nil
}

// Postgres is a Source over the cards, sales and listings tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Import writes ds in one transaction. Cards are upserted; sales and
// listings are appended, and each imported listing deactivates the card's
// previous ones. It returns the number of sales written.
func (p *Postgres) Import(ctx context.Context, ds Dataset) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable(sourcePostgres, fmt.Errorf("begin import: %w", err))
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range ds.Cards {
		batch.Queue(
			`INSERT INTO cards (id, name, game, set_name, number, language, grade, image_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, game = EXCLUDED.game,
			   set_name = EXCLUDED.set_name, number = EXCLUDED.number, language = EXCLUDED.language,
			   grade = EXCLUDED.grade, image_url = EXCLUDED.image_url`,
			c.ID, c.Name, string(c.Game), c.SetName, c.Number, string(model.NormalizeLanguage(string(c.Language))), string(c.Grade), c.ImageURL,
		)
	}
	for _, s := range ds.Sales {
		batch.Queue(
			`INSERT INTO sales (card_id, item_id, sold_at, price, shipping_cost, quantity, language, grade)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)`,
			s.CardID, s.ItemID, s.Timestamp.UTC(), s.Price.String(), s.ShippingCost.String(), s.Units(),
			string(model.NormalizeLanguage(string(s.Language))), string(s.Grade),
		)
	}
	for _, l := range ds.Listings {
		batch.Queue(`UPDATE listings SET is_active = FALSE WHERE card_id = $1`, l.CardID)
		batch.Queue(
			`INSERT INTO listings (card_id, item_id, title, price, shipping_cost, grade, listing_type, source_url, posted_at)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)`,
			l.CardID, l.ItemID, l.Title, l.Price.String(), l.ShippingCost.String(), string(l.Grade), string(l.Type), l.SourceURL, postedAt(l),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("import batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable(sourcePostgres, fmt.Errorf("commit import: %w", err))
	}
	return len(ds.Sales), nil
}

func postedAt(l model.Listing) time.Time {
	if l.PostedAt.IsZero() {
		return time.Now().UTC()
	}
	return l.PostedAt.UTC()
}

const saleColumns = `s.card_id, s.item_id, s.sold_at, s.price::text, s.shipping_cost::text, s.quantity, s.language, s.grade`

// GetSales returns the matching sales in [start, end), oldest first. A zero end is unbounded.
func (p *Postgres) GetSales(ctx context.Context, sel Selector, start, end time.Time) ([]model.Sale, error) {
	if end.IsZero() {
		end = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case sel.CardID != "":
		rows, err = p.pool.Query(ctx,
			`SELECT `+saleColumns+` FROM sales s
			 WHERE s.card_id = $1 AND s.sold_at >= $2 AND s.sold_at < $3
			 ORDER BY s.sold_at ASC, s.id ASC`,
			sel.CardID, start, end,
		)
	case sel.SetName != "":
		rows, err = p.pool.Query(ctx,
			`SELECT `+saleColumns+` FROM sales s JOIN cards c ON c.id = s.card_id
			 WHERE c.set_name = $1 AND s.sold_at >= $2 AND s.sold_at < $3
			 ORDER BY s.sold_at ASC, s.id ASC`,
			sel.SetName, start, end,
		)
	default:
		rows, err = p.pool.Query(ctx,
			`SELECT `+saleColumns+` FROM sales s
			 WHERE s.sold_at >= $1 AND s.sold_at < $2
			 ORDER BY s.sold_at ASC, s.id ASC`,
			start, end,
		)
	}
	if err != nil {
		return nil, unavailable(sourcePostgres, err)
	}
	defer rows.Close()

	sales, err := collectSales(rows)
	if err != nil {
		return nil, unavailable(sourcePostgres, err)
	}
	return nonEmpty(sales)
}

func (p *Postgres) GetCard(ctx context.Context, id string) (model.Card, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, game, set_name, number, language, grade, image_url FROM cards WHERE id = $1`,
		id,
	)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Card{}, &NotFoundError{Kind: "card", ID: id}
		}
		return model.Card{}, unavailable(sourcePostgres, err)
	}
	return c, nil
}

// GetActiveListing returns the card's cheapest active listing, or nil.
func (p *Postgres) GetActiveListing(ctx context.Context, cardID string) (*model.Listing, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT card_id, item_id, title, price::text, shipping_cost::text, grade, listing_type, source_url, posted_at
		 FROM listings WHERE card_id = $1 AND is_active
		 ORDER BY price ASC, posted_at DESC LIMIT 1`,
		cardID,
	)
	var (
		l            model.Listing
		price, ship  string
		grade, ltype string
	)
	err := row.Scan(&l.CardID, &l.ItemID, &l.Title, &price, &ship, &grade, &ltype, &l.SourceURL, &l.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(sourcePostgres, err)
	}
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("listing %s price: %w", cardID, err)
	}
	if l.ShippingCost, err = decimal.NewFromString(ship); err != nil {
		return nil, fmt.Errorf("listing %s shipping: %w", cardID, err)
	}
	l.Grade = model.Grade(grade)
	l.Type = model.ListingType(ltype)
	l.PostedAt = l.PostedAt.UTC()
	return &l, nil
}

func (p *Postgres) ListCards(ctx context.Context) ([]model.Card, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, game, set_name, number, language, grade, image_url FROM cards ORDER BY id ASC`,
	)
	if err != nil {
		return nil, unavailable(sourcePostgres, err)
	}
	defer rows.Close()

	var out []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, unavailable(sourcePostgres, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(sourcePostgres, err)
	}
	return out, nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanCard(row scannable) (model.Card, error) {
	var c model.Card
	var game, lang, grade string
	if err := row.Scan(&c.ID, &c.Name, &game, &c.SetName, &c.Number, &lang, &grade, &c.ImageURL); err != nil {
		return model.Card{}, err
	}
	c.Game = model.Game(game)
	c.Language = model.NormalizeLanguage(lang)
	c.Grade = model.Grade(grade)
	return c, nil
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectSales(rows rowsIter) ([]model.Sale, error) {
	var out []model.Sale
	for rows.Next() {
		var s model.Sale
		var price, ship, lang, grade string
		if err := rows.Scan(&s.CardID, &s.ItemID, &s.Timestamp, &price, &ship, &s.Quantity, &lang, &grade); err != nil {
			return nil, err
		}
		var err error
		if s.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sale %s price: %w", s.ItemID, err)
		}
		if s.ShippingCost, err = decimal.NewFromString(ship); err != nil {
			return nil, fmt.Errorf("sale %s shipping: %w", s.ItemID, err)
		}
		s.Timestamp = s.Timestamp.UTC()
		s.Language = model.NormalizeLanguage(lang)
		s.Grade = model.Grade(grade)
		out = append(out, s)
	}
	return out, rows.Err()
}
