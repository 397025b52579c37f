package dashboard

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule matches the dashboard's polling cadence.
const DefaultSchedule = "@every 30s"

// Scheduler drives Board.Refresh on a cron schedule. A tick that arrives
// while the previous refresh is still running is skipped, not queued.
type Scheduler struct {
	board    *Board
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	running  atomic.Bool
	skipped  atomic.Int64
	log      *logrus.Entry
}

// NewScheduler validates schedule (standard 5-field cron or @every/@hourly
// descriptors). timeout bounds each refresh; zero means none.
func NewScheduler(board *Board, schedule string, timeout time.Duration) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		board:    board,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		log:      board.log.WithField("schedule", schedule),
	}, nil
}

// Run refreshes once immediately, then on every tick until ctx is done.
// It waits for an in-flight refresh before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	s.tick(ctx)
	s.cron.Start()
	s.log.Info("Refresh scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.WithField("skipped", s.skipped.Load()).Info("Refresh scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Debug("Previous refresh still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	// Refresh logs its own failures; the board keeps serving the last snapshot.
	_ = s.board.Refresh(ctx)
}

// Skipped counts ticks dropped because a refresh was still running.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }
