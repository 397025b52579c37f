// Package report writes engine results as CSV. Free-text cells are escaped
// against formula injection; numeric cells are written verbatim.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/alert"
	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

const dateFormat = "2006-01-02"

type table struct {
	w   *csv.Writer
	err error
}

func newTable(w io.Writer, headers ...string) *table {
	t := &table{w: csv.NewWriter(w)}
	t.row(EscapeRow(headers))
	return t
}

func (t *table) row(cells []string) {
	if t.err != nil {
		return
	}
	if err := t.w.Write(cells); err != nil {
		t.err = fmt.Errorf("writing row: %w", err)
	}
}

func (t *table) close() error {
	if t.err != nil {
		return t.err
	}
	t.w.Flush()
	return t.w.Error()
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// pct renders a ratio as a percentage with two decimals.
func pct(ratio decimal.Decimal) string { return ratio.Shift(2).StringFixed(2) }

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return money(d.Decimal)
}

// WriteOpportunities writes one row per opportunity in the given order.
func WriteOpportunities(w io.Writer, opps []scoring.Opportunity) error {
	t := newTable(w,
		"Card ID", "Card Name", "Game", "Set", "Grade", "Language",
		"Listing Price", "Floor Price", "Gross Profit", "Fees", "Net Profit",
		"ROI %", "Discount %", "Sales In Window", "Listing Type", "Listing URL",
	)
	for _, o := range opps {
		grade := o.Listing.Grade
		if grade == "" {
			grade = o.Card.Grade
		}
		t.row([]string{
			EscapeCell(o.Card.ID),
			EscapeCell(o.Card.Name),
			EscapeCell(string(o.Card.Game)),
			EscapeCell(o.Card.SetName),
			EscapeCell(string(grade)),
			EscapeCell(string(o.Card.Language)),
			money(o.ListingPrice),
			money(o.FloorPrice),
			money(o.GrossProfit),
			money(o.Fees),
			money(o.EstimatedNetProfit),
			pct(o.ProfitMargin),
			pct(o.DiscountPct),
			strconv.Itoa(o.SalesInWindow),
			EscapeCell(string(o.Listing.Type)),
			EscapeCell(o.Listing.SourceURL),
		})
	}
	return t.close()
}

// WriteHistory writes the buckets of h, oldest first. Daily and weekly
// buckets are labelled by their UTC start date.
func WriteHistory(w io.Writer, h *engine.History) error {
	t := newTable(w, "Bucket Start", "Open", "High", "Low", "Close", "Average", "Median", "Volume", "Sales")
	for _, b := range h.Buckets {
		t.row([]string{
			bucketLabel(b.Start),
			money(b.Open),
			money(b.High),
			money(b.Low),
			money(b.Close),
			money(b.Average),
			money(b.Median),
			strconv.Itoa(b.Volume),
			strconv.Itoa(b.Sales),
		})
	}
	return t.close()
}

func bucketLabel(start time.Time) string {
	start = start.UTC()
	if start.Equal(start.Truncate(24 * time.Hour)) {
		return start.Format(dateFormat)
	}
	return start.Format(time.RFC3339)
}

// WriteMovers writes one row per mover in rank order.
func WriteMovers(w io.Writer, movers []trend.Mover) error {
	t := newTable(w, "Rank", "Card ID", "Window", "Reference Close", "Latest Close", "Change %", "Direction", "Volume")
	for _, m := range movers {
		t.row([]string{
			strconv.Itoa(m.Rank),
			EscapeCell(m.CardID),
			engine.WindowLabel(m.Window),
			money(m.ReferenceClose),
			money(m.LatestClose),
			pct(m.ChangePct),
			string(m.Direction),
			strconv.Itoa(m.Volume),
		})
	}
	return t.close()
}

// WriteTrending writes one row per trending card in rank order.
func WriteTrending(w io.Writer, cards []trend.TrendingCard) error {
	t := newTable(w, "Rank", "Card ID", "Window", "Recent Volume", "Recent Avg Volume", "Baseline Avg Volume", "Volume Ratio", "Change %")
	for _, c := range cards {
		change := ""
		if c.ChangePct.Valid {
			change = pct(c.ChangePct.Decimal)
		}
		t.row([]string{
			strconv.Itoa(c.Rank),
			EscapeCell(c.CardID),
			engine.WindowLabel(c.Window),
			strconv.Itoa(c.RecentVolume),
			c.RecentAverage.StringFixed(2),
			c.BaselineAverage.StringFixed(2),
			c.VolumeRatio.StringFixed(2),
			change,
		})
	}
	return t.close()
}

// WriteSummary writes a price history summary as key/value rows.
func WriteSummary(w io.Writer, h *engine.History) error {
	t := newTable(w, "Field", "Value")
	s := h.Summary
	t.row([]string{"Selector", EscapeCell(h.Selector)})
	t.row([]string{"Start", h.Start.Format(time.RFC3339)})
	t.row([]string{"End", h.End.Format(time.RFC3339)})
	t.row([]string{"Average Price", nullMoney(s.AveragePrice)})
	t.row([]string{"Current Floor", nullMoney(s.CurrentFloor)})
	t.row([]string{"Highest Sale", nullMoney(s.HighestSale)})
	t.row([]string{"Lowest Sale", nullMoney(s.LowestSale)})
	t.row([]string{"Total Sales", strconv.Itoa(s.TotalSales)})
	t.row([]string{"Volume", strconv.Itoa(s.Volume)})
	return t.close()
}

// WriteAlerts writes alerts in the order given.
func WriteAlerts(w io.Writer, alerts []alert.Alert) error {
	t := newTable(w, "Alert Type", "Severity", "Timestamp", "Card ID", "Card Name", "Message")
	for _, a := range alerts {
		t.row([]string{
			string(a.Type),
			string(a.Severity),
			a.Timestamp.UTC().Format(time.RFC3339),
			EscapeCell(a.CardID),
			EscapeCell(a.CardName),
			EscapeCell(a.Message),
		})
	}
	return t.close()
}
