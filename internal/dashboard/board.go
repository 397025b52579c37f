// Package dashboard keeps the most recent complete aggregation pass and
// refreshes it on a schedule.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/metrics"
	"github.com/guarzo/gradearb/internal/scoring"
	"github.com/guarzo/gradearb/internal/trend"
)

// ErrNoSnapshot means no pass has succeeded yet.
var ErrNoSnapshot = errors.New("dashboard: no snapshot available")

// Passer runs one full aggregation pass. *engine.Engine satisfies it.
type Passer interface {
	Pass(ctx context.Context) (*engine.Snapshot, error)
}

// Listener is told about every published snapshot, in publish order.
type Listener func(ctx context.Context, snap *engine.Snapshot)

// Status describes the board for presentation. Stale is set once a refresh
// fails after a snapshot was published and cleared by the next success.
type Status struct {
	AsOf        time.Time `json:"as_of"`
	Stale       bool      `json:"stale"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	Unavailable bool      `json:"unavailable"` // last failure was an unreachable data source
}

// Board serves reads from the last successful snapshot. Readers never
// block on a refresh and never see a partial pass.
type Board struct {
	passer    Passer
	evaluator *filter.Evaluator
	recorder  *metrics.Recorder
	log       *logrus.Entry

	current atomic.Pointer[engine.Snapshot]

	mu        sync.Mutex // guards status and listeners
	status    Status
	listeners []Listener
}

type Option func(*Board)

// WithRecorder records pass metrics.
func WithRecorder(r *metrics.Recorder) Option {
	return func(b *Board) { b.recorder = r }
}

// WithEvaluator sets the evaluator used for filtered queries.
func WithEvaluator(e *filter.Evaluator) Option {
	return func(b *Board) { b.evaluator = e }
}

func WithLogger(l *logrus.Entry) Option {
	return func(b *Board) { b.log = l }
}

// NewBoard creates a Board with no snapshot; call Refresh to publish one.
func NewBoard(p Passer, opts ...Option) *Board {
	b := &Board{
		passer:    p,
		evaluator: filter.NewEvaluator(filter.DefaultMaxPrice),
		log:       logger.WithComponent("dashboard"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnPublish registers l for future snapshots.
func (b *Board) OnPublish(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Refresh runs a pass and publishes it if it completes. On failure the
// previous snapshot stays in place and the error is returned.
func (b *Board) Refresh(ctx context.Context) error {
	started := time.Now()
	snap, err := b.passer.Pass(ctx)
	b.recorder.ObservePass(time.Since(started), err)

	b.mu.Lock()
	b.status.LastAttempt = started
	if err != nil {
		b.status.LastError = err.Error()
		unavailable := ledger.IsUnavailable(err)
		b.status.Unavailable = unavailable
		b.status.Stale = b.current.Load() != nil
		b.mu.Unlock()

		b.log.WithError(err).WithField("unavailable", unavailable).Warn("Refresh failed, keeping previous snapshot")
		return err
	}

	b.current.Store(snap)
	b.status = Status{AsOf: snap.AsOf, LastAttempt: started}
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.Unlock()

	b.recorder.SetSnapshot(snap.CardCount, len(snap.Opportunities))
	b.log.WithFields(logrus.Fields{
		"as_of":         snap.AsOf,
		"cards":         snap.CardCount,
		"opportunities": len(snap.Opportunities),
	}).Info("Snapshot published")

	for _, l := range listeners {
		l(ctx, snap)
	}
	return nil
}

// Snapshot returns the published snapshot, or nil before the first success.
func (b *Board) Snapshot() *engine.Snapshot {
	return b.current.Load()
}

// Status reports the age and health of the current snapshot.
func (b *Board) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Opportunities filters the published opportunities.
func (b *Board) Opportunities(p filter.Predicates) ([]scoring.Opportunity, error) {
	snap := b.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return b.evaluator.Apply(snap.Opportunities, p), nil
}

// Movers returns the top limit movers for a window computed by the pass.
func (b *Board) Movers(window time.Duration, limit int) ([]trend.Mover, error) {
	r, err := b.ranking(window)
	if err != nil {
		return nil, err
	}
	return head(r.Movers, limit), nil
}

// Trending returns the trending cards of the current snapshot for window.
func (b *Board) Trending(window time.Duration, limit int) ([]trend.TrendingCard, error) {
	r, err := b.ranking(window)
	if err != nil {
		return nil, err
	}
	return head(r.Trending, limit), nil
}

func (b *Board) ranking(window time.Duration) (engine.Ranking, error) {
	snap := b.current.Load()
	if snap == nil {
		return engine.Ranking{}, ErrNoSnapshot
	}
	r, ok := snap.Ranking(window)
	if !ok {
		return engine.Ranking{}, &UnknownWindowError{Window: window}
	}
	return r, nil
}

// UnknownWindowError is returned for a window the pass does not rank.
type UnknownWindowError struct {
	Window time.Duration
}

func (e *UnknownWindowError) Error() string {
	return "dashboard: no ranking for window " + engine.WindowLabel(e.Window)
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
