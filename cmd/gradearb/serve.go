package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guarzo/gradearb/internal/alert"
	"github.com/guarzo/gradearb/internal/dashboard"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/logger"
	"github.com/guarzo/gradearb/internal/metrics"
)

var serveFlags struct {
	refreshTimeout time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh the dashboard snapshot on a schedule, raise alerts and expose /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, cleanup, err := newEngine(ctx, cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		rec := metrics.New()
		board := dashboard.NewBoard(e,
			dashboard.WithRecorder(rec),
			dashboard.WithEvaluator(filter.NewEvaluator(e.Config().MaxPrice)),
		)

		monitor, err := alert.NewMonitor(cfg.Alert(), alert.LogNotifier{Log: logger.WithComponent("alert")}, rec)
		if err != nil {
			return err
		}
		board.OnPublish(monitor.Handle)

		sched, err := dashboard.NewScheduler(board, cfg.RefreshSchedule, serveFlags.refreshTimeout)
		if err != nil {
			return err
		}

		log.WithField("backend", cfg.LedgerBackend).WithField("metrics_addr", cfg.MetricsAddr).Info("Starting")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(gctx) })
		if cfg.MetricsAddr != "" {
			g.Go(func() error { return rec.Serve(gctx, cfg.MetricsAddr) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveFlags.refreshTimeout, "refresh-timeout", 25*time.Second, "upper bound on one refresh (0 for none)")
	rootCmd.AddCommand(serveCmd)
}
