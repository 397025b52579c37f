package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guarzo/gradearb/internal/config"
	"github.com/guarzo/gradearb/internal/logger"
)

var (
	cfg *config.Config
	log *logrus.Entry
)

var rootCmd = &cobra.Command{
	Use:           "gradearb",
	Short:         "Graded card price analytics and arbitrage finder",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		logger.SetDefault(logger.New(c.Logger()))
		log = logger.WithComponent("cli").WithField("command", cmd.Name())
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Get().WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}
