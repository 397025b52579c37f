package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guarzo/gradearb/internal/config"
	"github.com/guarzo/gradearb/internal/ledger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres ledger tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LedgerBackend != config.BackendPostgres {
			return fmt.Errorf("migrate needs LEDGER_BACKEND=postgres, got %q", cfg.LedgerBackend)
		}

		pool, err := ledger.Connect(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Error("Failed to connect to database")
			return err
		}
		defer pool.Close()

		if err := ledger.NewPostgres(pool).Migrate(cmd.Context()); err != nil {
			log.WithError(err).Error("Migration failed")
			return err
		}

		log.Info("Migration completed successfully")
		return nil
	},
}

var importFlags struct {
	file string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy a JSON ledger file into Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LedgerBackend != config.BackendPostgres {
			return fmt.Errorf("import needs LEDGER_BACKEND=postgres, got %q", cfg.LedgerBackend)
		}
		path := importFlags.file
		if path == "" {
			path = cfg.LedgerFile
		}

		store, err := ledger.LoadFile(path)
		if err != nil {
			return err
		}

		pool, err := ledger.Connect(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := ledger.NewPostgres(pool).Import(cmd.Context(), store.Dataset())
		if err != nil {
			return err
		}
		log.WithField("file", path).WithField("sales", n).Info("Import completed")
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFlags.file, "file", "", "ledger file (defaults to LEDGER_FILE)")
	rootCmd.AddCommand(migrateCmd, importCmd)
}
