package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/metrics"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

// Type represents different kinds of market alerts
type Type string

const (
	NewOpportunity Type = "NEW_OPPORTUNITY"
	PriceMove      Type = "PRICE_MOVE"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alert represents a significant market event
type Alert struct {
	Type        Type           `json:"type"`
	Severity    Severity       `json:"severity"`
	CardID      string         `json:"card_id"`
	CardName    string         `json:"card_name,omitempty"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	ActionItems []string       `json:"action_items,omitempty"`
}

// Config contains alert thresholds. Percentages are in percent (20 = 20%).
type Config struct {
	MinROI        decimal.Decimal // minimum ROI percent for an opportunity alert
	DealThreshold decimal.Decimal // listing must be below DealThreshold × floor
	MovePct       decimal.Decimal // minimum |change| percent for a price move alert
	MinSeverity   Severity        // only emit alerts at or above this severity
	MemorySize    int             // opportunities remembered for dedupe
}

// DefaultConfig returns the alert thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinROI:        decimal.NewFromInt(20),
		DealThreshold: decimal.RequireFromString("0.8"),
		MovePct:       decimal.NewFromInt(20),
		MemorySize:    10000,
	}
}

// Notifier delivers alerts somewhere.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// LogNotifier writes each alert as a structured log entry.
type LogNotifier struct {
	Log *logrus.Entry
}

func (n LogNotifier) Notify(_ context.Context, alerts []Alert) error {
	log := n.Log
	if log == nil {
		log = logger.WithComponent("alert")
	}
	for _, a := range alerts {
		log.WithFields(logrus.Fields{
			"type":     a.Type,
			"severity": a.Severity,
			"card_id":  a.CardID,
		}).Info(a.Message)
	}
	return nil
}

// Monitor turns published snapshots into alerts. An opportunity alerts once
// per (card, listing); a price move alerts when a card starts moving past
// the threshold and re-arms once it falls back under it.
type Monitor struct {
	config   Config
	notifier Notifier
	recorder *metrics.Recorder
	log      *logrus.Entry

	mu     sync.Mutex
	seen   *lru.Cache          // opportunity keys already alerted
	moving map[string]struct{} // card|window keys currently past MovePct
}

// NewMonitor creates a Monitor. recorder may be nil.
func NewMonitor(config Config, notifier Notifier, recorder *metrics.Recorder) (*Monitor, error) {
	d := DefaultConfig()
	if config.DealThreshold.IsZero() {
		config.DealThreshold = d.DealThreshold
	}
	if config.MovePct.IsZero() {
		config.MovePct = d.MovePct
	}
	if config.MemorySize <= 0 {
		config.MemorySize = d.MemorySize
	}
	seen, err := lru.New(config.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("create alert memory: %w", err)
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Monitor{
		config:   config,
		notifier: notifier,
		recorder: recorder,
		log:      logger.WithComponent("alert"),
		seen:     seen,
		moving:   make(map[string]struct{}),
	}, nil
}

// Evaluate returns the alerts snap raises that have not been raised before,
// highest severity first.
func (m *Monitor) Evaluate(snap *engine.Snapshot) []Alert {
	if snap == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var alerts []Alert
	for _, o := range snap.Opportunities {
		if !m.qualifies(o) {
			continue
		}
		key := opportunityKey(o)
		if m.seen.Contains(key) {
			continue
		}
		m.seen.Add(key, struct{}{})
		alerts = append(alerts, opportunityAlert(o, snap.AsOf))
	}

	moving := make(map[string]struct{})
	for _, r := range snap.Rankings {
		for _, mv := range r.Movers {
			if mv.ChangePct.Abs().Mul(hundred).LessThan(m.config.MovePct) {
				continue
			}
			key := mv.CardID + "|" + r.Label
			moving[key] = struct{}{}
			if _, already := m.moving[key]; already {
				continue
			}
			alerts = append(alerts, moveAlert(mv, r.Label, snap.AsOf))
		}
	}
	m.moving = moving

	alerts = m.filterBySeverity(alerts)
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.rank() > alerts[j].Severity.rank()
	})
	return alerts
}

// Handle evaluates snap and sends any alerts. It has the dashboard
// listener signature.
func (m *Monitor) Handle(ctx context.Context, snap *engine.Snapshot) {
	alerts := m.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		m.recorder.AlertRaised(string(a.Type))
	}
	if err := m.notifier.Notify(ctx, alerts); err != nil {
		m.log.WithError(err).WithField("alerts", len(alerts)).Warn("Failed to deliver alerts")
	}
}

var hundred = decimal.NewFromInt(100)

func (m *Monitor) qualifies(o scoring.Opportunity) bool {
	return o.ROIPercent().GreaterThanOrEqual(m.config.MinROI) && o.IsDeal(m.config.DealThreshold)
}

func opportunityKey(o scoring.Opportunity) string {
	listing := o.Listing.ItemID
	if listing == "" {
		listing = o.Listing.SourceURL
	}
	return o.Card.ID + "|" + listing
}

func opportunityAlert(o scoring.Opportunity, at time.Time) Alert {
	roi := o.ROIPercent()
	return Alert{
		Type:      NewOpportunity,
		Severity:  roiSeverity(roi),
		CardID:    o.Card.ID,
		CardName:  o.Card.Name,
		Message:   fmt.Sprintf("Listing at $%s is %s%% below the $%s floor (ROI %s%%)", o.ListingPrice.StringFixed(2), o.DiscountPct.Mul(hundred).StringFixed(1), o.FloorPrice.StringFixed(2), roi.StringFixed(1)),
		Timestamp: at,
		Details: map[string]any{
			"listing_price": o.ListingPrice.StringFixed(2),
			"floor_price":   o.FloorPrice.StringFixed(2),
			"net_profit":    o.EstimatedNetProfit.StringFixed(2),
			"roi_pct":       roi.StringFixed(2),
			"listing_url":   o.Listing.SourceURL,
		},
		ActionItems: []string{
			fmt.Sprintf("Buy at $%s", o.ListingPrice.StringFixed(2)),
			fmt.Sprintf("Expected net profit: $%s", o.EstimatedNetProfit.StringFixed(2)),
		},
	}
}

func moveAlert(mv trend.Mover, window string, at time.Time) Alert {
	pct := mv.ChangePct.Mul(hundred)
	return Alert{
		Type:      PriceMove,
		Severity:  moveSeverity(pct.Abs()),
		CardID:    mv.CardID,
		Message:   fmt.Sprintf("Price moved %s%% over %s ($%s to $%s)", pct.StringFixed(1), window, mv.ReferenceClose.StringFixed(2), mv.LatestClose.StringFixed(2)),
		Timestamp: at,
		Details: map[string]any{
			"window":     window,
			"change_pct": pct.StringFixed(2),
			"direction":  mv.Direction,
			"volume":     mv.Volume,
		},
	}
}

func roiSeverity(roi decimal.Decimal) Severity {
	switch {
	case roi.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return SeverityHigh
	case roi.GreaterThanOrEqual(decimal.NewFromInt(25)):
		return SeverityMedium
	}
	return SeverityLow
}

func moveSeverity(absPct decimal.Decimal) Severity {
	switch {
	case absPct.GreaterThanOrEqual(decimal.NewFromInt(30)):
		return SeverityHigh
	case absPct.GreaterThanOrEqual(decimal.NewFromInt(15)):
		return SeverityMedium
	}
	return SeverityLow
}

// filterBySeverity removes alerts below the configured minimum severity
func (m *Monitor) filterBySeverity(alerts []Alert) []Alert {
	minRank := m.config.MinSeverity.rank()
	if minRank == 0 {
		return alerts
	}
	var filtered []Alert
	for _, a := range alerts {
		if a.Severity.rank() >= minRank {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// ParseSeverity accepts HIGH, MEDIUM or LOW in any case; empty means no minimum.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev == "" || sev.rank() > 0 {
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// FormatAlert creates a human-readable string representation of an alert
func FormatAlert(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] %s\n", a.Severity, a.Type)
	if a.CardName != "" {
		fmt.Fprintf(&b, "Card: %s (%s)\n", a.CardName, a.CardID)
	} else {
		fmt.Fprintf(&b, "Card: %s\n", a.CardID)
	}
	fmt.Fprintf(&b, "Message: %s\n", a.Message)

	if len(a.ActionItems) > 0 {
		b.WriteString("Recommended Actions:\n")
		for i, action := range a.ActionItems {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, action)
		}
	}
	return b.String()
}
