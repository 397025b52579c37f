package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/metrics"
	"github.com/guarzo/gradearb/internal/model"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

var asOf = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

// scriptedPasser returns its results in order, repeating the last one.
type scriptedPasser struct {
	mu      sync.Mutex
	results []func() (*engine.Snapshot, error)
	calls   int
}

func (p *scriptedPasser) Pass(ctx context.Context) (*engine.Snapshot, error) {
	p.mu.Lock()
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	p.mu.Unlock()
	return p.results[i]()
}

func ok(snap *engine.Snapshot) func() (*engine.Snapshot, error) {
	return func() (*engine.Snapshot, error) { return snap, nil }
}

func fail(err error) func() (*engine.Snapshot, error) {
	return func() (*engine.Snapshot, error) { return nil, err }
}

func opp(id, name string, margin string) scoring.Opportunity {
	return scoring.Opportunity{
		Card:         model.Card{ID: id, Name: name},
		ListingPrice: decimal.NewFromInt(100),
		ProfitMargin: decimal.RequireFromString(margin),
	}
}

func snapshot(at time.Time) *engine.Snapshot {
	return &engine.Snapshot{
		AsOf:          at,
		CardCount:     3,
		Opportunities: []scoring.Opportunity{opp("a", "Charizard", "0.4"), opp("b", "Blastoise", "0.2"), opp("c", "Venusaur", "0.1")},
		Rankings: []engine.Ranking{{
			Window: 24 * time.Hour,
			Label:  "24h",
			Movers: []trend.Mover{
				{Change: trend.Change{CardID: "a"}, Rank: 1},
				{Change: trend.Change{CardID: "b"}, Rank: 2},
			},
		}},
	}
}

func quietBoard(p Passer, opts ...Option) *Board {
	opts = append([]Option{WithLogger(logger.Discard().WithField("component", "dashboard"))}, opts...)
	return NewBoard(p, opts...)
}

func TestBoard_EmptyUntilFirstSuccess(t *testing.T) {
	down := &ledger.DataSourceUnavailableError{Source: "sale ledger", Err: errors.New("timeout")}
	b := quietBoard(&scriptedPasser{results: []func() (*engine.Snapshot, error){fail(down)}})

	if err := b.Refresh(context.Background()); err == nil {
		t.Fatal("Expected refresh error")
	}
	if b.Snapshot() != nil {
		t.Error("Expected no snapshot after a failed first pass")
	}
	if _, err := b.Opportunities(filter.Predicates{}); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
	st := b.Status()
	if st.Stale || !st.Unavailable || st.LastError == "" {
		t.Errorf("Expected unavailable, not stale, got %+v", st)
	}
}

func TestBoard_KeepsLastSnapshotOnFailure(t *testing.T) {
	first := snapshot(asOf)
	p := &scriptedPasser{results: []func() (*engine.Snapshot, error){
		ok(first),
		fail(errors.New("boom")),
		ok(snapshot(asOf.Add(30 * time.Second))),
	}}
	rec := metrics.New()
	b := quietBoard(p, WithRecorder(rec))
	ctx := context.Background()

	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := b.Refresh(ctx); err == nil {
		t.Fatal("Expected second refresh to fail")
	}
	if b.Snapshot() != first {
		t.Error("Expected the first snapshot to remain published")
	}
	if st := b.Status(); !st.Stale || st.Unavailable || !st.AsOf.Equal(asOf) {
		t.Errorf("Expected stale status as of the first pass, got %+v", st)
	}

	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	if st := b.Status(); st.Stale || st.LastError != "" {
		t.Errorf("Expected fresh status after recovery, got %+v", st)
	}
	// one series per result label
	if n, err := testutil.GatherAndCount(rec.Registry(), "gradearb_passes_total"); err != nil || n != 2 {
		t.Errorf("Expected success and failure pass series, got %d (%v)", n, err)
	}
}

func TestBoard_Queries(t *testing.T) {
	b := quietBoard(&scriptedPasser{results: []func() (*engine.Snapshot, error){ok(snapshot(asOf))}})
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	opps, err := b.Opportunities(filter.Predicates{Search: "CHAR"})
	if err != nil || len(opps) != 1 || opps[0].Card.ID != "a" {
		t.Errorf("Expected Charizard only, got %v (%v)", opps, err)
	}
	opps, _ = b.Opportunities(filter.Predicates{Limit: 2})
	if len(opps) != 2 {
		t.Errorf("Expected limit 2, got %d", len(opps))
	}

	movers, err := b.Movers(24*time.Hour, 1)
	if err != nil || len(movers) != 1 || movers[0].CardID != "a" {
		t.Errorf("Expected top mover a, got %v (%v)", movers, err)
	}

	var unknown *UnknownWindowError
	if _, err := b.Trending(7*24*time.Hour, 5); !errors.As(err, &unknown) {
		t.Errorf("Expected UnknownWindowError, got %v", err)
	}
}

func TestBoard_ListenersSeePublishedSnapshots(t *testing.T) {
	p := &scriptedPasser{results: []func() (*engine.Snapshot, error){
		ok(snapshot(asOf)),
		fail(errors.New("boom")),
	}}
	b := quietBoard(p)

	var seen []time.Time
	b.OnPublish(func(_ context.Context, s *engine.Snapshot) { seen = append(seen, s.AsOf) })

	_ = b.Refresh(context.Background())
	_ = b.Refresh(context.Background())
	if len(seen) != 1 || !seen[0].Equal(asOf) {
		t.Errorf("Expected one notification for the successful pass, got %v", seen)
	}
}

// blockingPasser holds every pass until release is closed.
type blockingPasser struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingPasser) Pass(ctx context.Context) (*engine.Snapshot, error) {
	if p.calls.Add(1) == 1 {
		close(p.started)
	}
	<-p.release
	return snapshot(asOf), nil
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	p := &blockingPasser{started: make(chan struct{}), release: make(chan struct{})}
	b := quietBoard(p)
	s, err := NewScheduler(b, "@every 1h", 0)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		s.tick(ctx)
		close(done)
	}()
	<-p.started

	s.tick(ctx)
	s.tick(ctx)
	if s.Skipped() != 2 {
		t.Errorf("Expected 2 skipped ticks, got %d", s.Skipped())
	}

	close(p.release)
	<-done
	if p.calls.Load() != 1 {
		t.Errorf("Expected a single pass, got %d", p.calls.Load())
	}
	if b.Snapshot() == nil {
		t.Error("Expected the running pass to publish")
	}
}

func TestScheduler_RunRefreshesImmediately(t *testing.T) {
	p := &scriptedPasser{results: []func() (*engine.Snapshot, error){ok(snapshot(asOf))}}
	b := quietBoard(p)
	s, err := NewScheduler(b, "", time.Second)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.OnPublish(func(context.Context, *engine.Snapshot) { cancel() })

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Snapshot() == nil {
		t.Error("Expected a snapshot from the initial refresh")
	}
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	b := quietBoard(&scriptedPasser{results: []func() (*engine.Snapshot, error){ok(snapshot(asOf))}})
	if _, err := NewScheduler(b, "every now and then", 0); err == nil {
		t.Error("Expected a parse error")
	}
}
